// Command plugify is a thin demonstration wrapper around the orchestration
// core: enough of a CLI to drive an install/resolve/load cycle from a
// terminal, not a product-grade front end.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/downloader"
	"github.com/plugify-go/plugify/internal/packagemanager"
	"github.com/plugify-go/plugify/internal/pluginmanager"
)

var buildVersion = "dev"

func main() {
	logger := log.New(os.Stdout, "[plugify] ", log.LstdFlags|log.Lmsgprefix)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "list":
		err = runList(cfg, logger)
	case "resolve":
		err = runResolve(cfg, logger)
	case "install":
		err = runInstall(args, cfg, logger)
	case "update":
		err = runUpdate(args, cfg, logger)
	case "uninstall":
		err = runUninstall(args, cfg, logger)
	case "snapshot":
		err = runSnapshot(args, cfg, logger)
	case "run":
		err = runLoadAndRun(cfg, logger)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: plugify <list|resolve|install|update|uninstall|snapshot|run> [args]")
	fmt.Fprintln(os.Stderr, "  install <name> [--version N]")
	fmt.Fprintln(os.Stderr, "  update <name> [--version N]")
	fmt.Fprintln(os.Stderr, "  uninstall <name>")
	fmt.Fprintln(os.Stderr, "  snapshot <path> [--pretty]")
}

// config is resolved from environment variables via an env-fallback
// convention rather than a config file or third-party flags library.
type config struct {
	baseDir     string
	configRepos []string
	workers     int
}

func loadConfig() config {
	baseDir := fallback(os.Getenv("PLUGIFY_BASE_DIR"), "./plugify-packages")
	repos := splitNonEmpty(os.Getenv("PLUGIFY_REPOS"), ",")
	workers := 4
	if raw := strings.TrimSpace(os.Getenv("PLUGIFY_DOWNLOAD_WORKERS")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			workers = n
		}
	}
	return config{baseDir: baseDir, configRepos: repos, workers: workers}
}

func fallback(value, fallbackValue string) string {
	if strings.TrimSpace(value) == "" {
		return fallbackValue
	}
	return value
}

func splitNonEmpty(value, sep string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newManager(cfg config, logger *log.Logger) *packagemanager.Manager {
	dl := downloader.New(cfg.workers, nil)
	return packagemanager.New(cfg.baseDir, cfg.configRepos, dl, logger)
}

func runList(cfg config, logger *log.Logger) error {
	mgr := newManager(cfg, logger)
	if err := mgr.LoadLocal(); err != nil {
		return err
	}
	for _, pkg := range mgr.Local().All() {
		fmt.Printf("%s\t%s\t%s\n", pkg.Name, pkg.Type, pkg.Version)
	}
	return nil
}

func runResolve(cfg config, logger *log.Logger) error {
	mgr := newManager(cfg, logger)
	if err := mgr.LoadLocal(); err != nil {
		return err
	}
	mgr.LoadRemote()
	facts := mgr.HostFacts()
	fmt.Printf("host\t%s\t%s\t%s\n", facts.Tag, facts.HostPlatform, facts.KernelVersion)
	result := mgr.Resolve()
	for name, req := range result.Missing {
		fmt.Printf("missing\t%s\t%s\n", name, req.Remote.Name)
	}
	for _, pkg := range result.Conflicted {
		fmt.Printf("conflicted\t%s\n", pkg.Name)
	}
	return nil
}

func runInstall(args []string, cfg config, logger *log.Logger) error {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	version := fs.Int("version", -1, "exact version to install (default: latest)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("install requires a package name")
	}
	name := fs.Arg(0)

	mgr := newManager(cfg, logger)
	if err := mgr.LoadLocal(); err != nil {
		return err
	}
	mgr.LoadRemote()
	mgr.Resolve()

	var requested *descriptor.Version
	if *version >= 0 {
		v := descriptor.Version(uint32(*version))
		requested = &v
	}
	outcome, err := mgr.InstallPackage(name, requested)
	if err != nil {
		return err
	}
	fmt.Printf("installed %s@%s at %s\n", outcome.Name, outcome.ChosenVersion, outcome.PublishDir)
	return nil
}

func runUpdate(args []string, cfg config, logger *log.Logger) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	version := fs.Int("version", -1, "exact version to update to (default: latest)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("update requires a package name")
	}
	name := fs.Arg(0)

	mgr := newManager(cfg, logger)
	if err := mgr.LoadLocal(); err != nil {
		return err
	}
	mgr.LoadRemote()

	var requested *descriptor.Version
	if *version >= 0 {
		v := descriptor.Version(uint32(*version))
		requested = &v
	}
	outcome, err := mgr.UpdatePackage(name, requested)
	if err != nil {
		return err
	}
	fmt.Printf("updated %s to %s at %s\n", outcome.Name, outcome.ChosenVersion, outcome.PublishDir)
	return nil
}

func runUninstall(args []string, cfg config, logger *log.Logger) error {
	if len(args) < 1 {
		return fmt.Errorf("uninstall requires a package name")
	}
	mgr := newManager(cfg, logger)
	if err := mgr.LoadLocal(); err != nil {
		return err
	}
	return mgr.UninstallPackage(args[0], true)
}

func runSnapshot(args []string, cfg config, logger *log.Logger) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	pretty := fs.Bool("pretty", false, "pretty-print the manifest")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("snapshot requires an output path")
	}

	mgr := newManager(cfg, logger)
	if err := mgr.LoadLocal(); err != nil {
		return err
	}
	return mgr.Snapshot(fs.Arg(0), *pretty)
}

// runLoadAndRun loads the local index, then loads every local plugin in
// dependency order, reporting each plugin's final state. It never invokes a plugin's
// own code; it only reports what the Plugin Manager resolved.
func runLoadAndRun(cfg config, logger *log.Logger) error {
	mgr := newManager(cfg, logger)
	if err := mgr.LoadLocal(); err != nil {
		return err
	}

	pm := pluginmanager.New(logger)
	if err := pm.LoadAll(mgr.Local()); err != nil {
		return err
	}
	defer pm.Shutdown()

	loaded := 0
	for _, p := range pm.All() {
		status := p.State.String()
		if p.Err != nil {
			status = fmt.Sprintf("%s (%v)", status, p.Err)
		}
		if p.State == pluginmanager.PluginRunning {
			loaded++
		}
		fmt.Printf("%s\t%s\n", p.Package.Name, status)
	}
	fmt.Printf("plugify %s: %d plugin(s) loaded\n", buildVersion, loaded)
	return nil
}
