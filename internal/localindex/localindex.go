// Package localindex scans a base directory for installed package
// descriptors and keeps them in an in-memory map keyed by unique name.
package localindex

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/platform"
)

const (
	// PluginExtension is the file extension used for plugin descriptors.
	PluginExtension = ".plugin"
	// ModuleExtension is the file extension used for language-module
	// descriptors.
	ModuleExtension = ".module"

	pluginsSubdir = "plugins"
	modulesSubdir = "modules"

	maxDepth = 3
)

// Package is an installed package: its identity, the descriptor file it was
// parsed from, and the unpacked on-disk location.
type Package struct {
	Name       string
	Type       string
	Version    descriptor.Version
	Path       string
	Dir        string
	Descriptor descriptor.Descriptor

	// Fingerprint is an xxhash64 digest of the descriptor file's raw bytes,
	// captured at parse time. Rescan uses it to skip re-decoding and
	// re-validating a descriptor file that hasn't changed since the last
	// scan; it is not a content-addressing or integrity mechanism (archive
	// integrity is SHA-256 only, see internal/installer).
	Fingerprint uint64
}

func (p Package) IsPlugin() bool { return p.Type == descriptor.PluginTypeTag }

// Index maps a package's unique name to its Package.
type Index struct {
	byName map[string]Package
}

func newIndex() *Index { return &Index{byName: make(map[string]Package)} }

func (idx *Index) Get(name string) (Package, bool) {
	p, ok := idx.byName[name]
	return p, ok
}

func (idx *Index) All() []Package {
	out := make([]Package, 0, len(idx.byName))
	for _, p := range idx.byName {
		out = append(out, p)
	}
	return out
}

func (idx *Index) Len() int { return len(idx.byName) }

func (idx *Index) put(p Package)         { idx.byName[p.Name] = p }
func (idx *Index) delete(name string)    { delete(idx.byName, name) }
func (idx *Index) has(name string) bool  { _, ok := idx.byName[name]; return ok }

// scanDepth is the walkDepth depth (counted up from 0 at baseDir's own
// entries) at which a descriptor file is expected to sit: one level inside
// the kind subdirectory's per-package directory, i.e.
// "<base>/<kind>/<name>/<name>.ext". A file planted directly in baseDir, in
// a kind subdirectory, or any deeper than its package directory is ignored.
const scanDepth = 2

// Load walks baseDir to a maximum depth of 3 (matching the on-disk layout
// "<base>/<kind>/<name>/<name>.ext") and parses every file at scanDepth
// with a recognized descriptor extension. Errors parsing or validating an
// individual file are logged and that file is skipped; they never fail the
// overall load.
func Load(baseDir string, logger *log.Logger) (*Index, error) {
	idx := newIndex()
	warn := func(format string, args ...interface{}) {
		if logger != nil {
			logger.Printf(format, args...)
		}
	}

	err := walkDepth(baseDir, maxDepth, func(path string, depth int) {
		if depth != scanDepth {
			return
		}
		switch filepath.Ext(path) {
		case PluginExtension, ModuleExtension:
		default:
			return
		}

		pkg, ok := loadOne(path, nil, warn)
		if !ok {
			return
		}
		insert(idx, pkg, warn)
	})
	if err != nil {
		return nil, fmt.Errorf("walk local index: %w", err)
	}
	return idx, nil
}

// Rescan re-walks baseDir like Load, but reuses previous's already-parsed
// and validated Package for any descriptor file whose xxhash fingerprint
// has not changed, instead of re-decoding and re-validating it. This keeps
// a large tree cheap to poll for changes; a full Load is still correct,
// just more expensive on an unchanged tree.
func Rescan(baseDir string, previous *Index, logger *log.Logger) (*Index, error) {
	idx := newIndex()
	warn := func(format string, args ...interface{}) {
		if logger != nil {
			logger.Printf(format, args...)
		}
	}

	err := walkDepth(baseDir, maxDepth, func(path string, depth int) {
		if depth != scanDepth {
			return
		}
		switch filepath.Ext(path) {
		case PluginExtension, ModuleExtension:
		default:
			return
		}

		pkg, ok := loadOne(path, previous, warn)
		if !ok {
			return
		}
		insert(idx, pkg, warn)
	})
	if err != nil {
		return nil, fmt.Errorf("rescan local index: %w", err)
	}
	return idx, nil
}

func loadOne(path string, previous *Index, warn func(string, ...interface{})) (Package, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		warn("local index: read %s: %v", path, err)
		return Package{}, false
	}
	fingerprint := xxhash.Sum64(data)

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if previous != nil {
		if existing, ok := previous.Get(name); ok && existing.Path == path && existing.Fingerprint == fingerprint {
			return existing, true
		}
	}

	d, err := descriptor.Decode(data)
	if err != nil {
		warn("local index: parse %s: %v", path, err)
		return Package{}, false
	}

	d, err = descriptor.Validate(d, platform.CurrentOS(), platform.CurrentArch(), log.Default())
	if err != nil {
		warn("local index: validate %s: %v", path, err)
		return Package{}, false
	}

	current := platform.Current()
	if descriptor.PlatformFiltered(d.SupportedPlatforms, current) {
		return Package{}, false
	}

	return Package{
		Name:        name,
		Type:        d.TypeTag(),
		Version:     descriptor.Version(d.Version),
		Path:        path,
		Dir:         filepath.Dir(path),
		Descriptor:  d,
		Fingerprint: fingerprint,
	}, true
}

func insert(idx *Index, pkg Package, warn func(string, ...interface{})) {
	existing, ok := idx.Get(pkg.Name)
	if !ok {
		idx.put(pkg)
		return
	}
	switch existing.Version.Compare(pkg.Version) {
	case -1:
		warn("local index: %q prioritizing newer version %s over %s", pkg.Name, pkg.Version, existing.Version)
		idx.put(pkg)
	case 1:
		warn("local index: %q keeping %s, ignoring older version at %s", pkg.Name, existing.Version, pkg.Path)
	default:
		warn("local index: %q duplicate at equal version, ignoring %s", pkg.Name, pkg.Path)
	}
}

// walkDepth walks root, invoking fn for every regular file found, with
// depth counted from root: a file directly inside root has depth 0, a file
// one directory below root has depth 1, and so on. Descent stops once
// depth exceeds max.
func walkDepth(root string, max int, fn func(path string, depth int)) error {
	return walkDepthRec(root, 0, max, fn)
}

func walkDepthRec(dir string, depth, max int, fn func(path string, depth int)) error {
	if depth > max {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := walkDepthRec(path, depth+1, max, fn); err != nil {
				return err
			}
			continue
		}
		fn(path, depth)
	}
	return nil
}
