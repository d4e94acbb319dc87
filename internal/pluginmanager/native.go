package pluginmanager

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/plugify-go/plugify/internal/assembly"
	"github.com/plugify-go/plugify/internal/localindex"
)

// moduleInitSymbol is the conventional exported C symbol every native
// language module library carries for lifecycle initialization. The
// Plugin Manager only resolves this address; it never calls it (calling
// into a module's or plugin's own code is explicitly out of scope).
const moduleInitSymbol = "PlugifyInitLanguageModule"

// activateNativeModule resolves the on-disk library for mod, opens it
// through the Assembly Loader with section parsing enabled (so
// FindVirtualTable and FindSymbol both work afterward), and records the
// module's initialization entry point address.
func activateNativeModule(mod *Module) error {
	path, err := nativeLibraryPath(mod.Package)
	if err != nil {
		return err
	}

	a, err := assembly.OpenByPath(path, assembly.OpenFlags{}, true)
	if err != nil {
		return fmt.Errorf("open module library: %w", err)
	}
	if a.Error != "" {
		return fmt.Errorf("load module library %s: %s", path, a.Error)
	}

	addr, ok := a.FindSymbol(moduleInitSymbol)
	if !ok {
		a.Close()
		return fmt.Errorf("module library %s missing entry point %q", path, moduleInitSymbol)
	}

	mod.assembly = a
	mod.EntryAddr = addr
	return nil
}

// activateNativePlugin hands a plugin to its already-loaded native
// language module. There is no generic native call dispatcher here — the
// Plugin Manager records that the module accepted the plugin, it does not
// execute the plugin's declared methods (see package doc).
func activateNativePlugin(mod *Module, pkg localindex.Package) error {
	if mod.assembly == nil {
		return fmt.Errorf("language module %q has no loaded assembly", mod.Package.Name)
	}
	// A real native language module would be handed pkg's descriptor
	// (entry point, exported methods) here via its registered ABI. That
	// call is plugin user code and out of this core's scope; activation
	// is considered successful once the module itself is loaded.
	_ = pkg
	return nil
}

// nativeLibraryPath locates the shared library backing a language
// module: the first of its declared LibraryDirectories (relative to the
// module's own directory) containing the conventional file name, falling
// back to the module directory itself.
func nativeLibraryPath(pkg localindex.Package) (string, error) {
	fileName := assembly.LibraryFileName(pkg.Name)

	candidates := pkg.Descriptor.LibraryDirectories
	if len(candidates) == 0 {
		candidates = []string{"."}
	}
	for _, dir := range candidates {
		candidate := filepath.Join(pkg.Dir, dir, fileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no library directory for %q contains %s", pkg.Name, fileName)
}
