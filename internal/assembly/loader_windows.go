//go:build windows

package assembly

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func openNative(path string, flags OpenFlags) (*Assembly, error) {
	var loadFlags uint32
	if !flags.RunInitializers {
		// Map the memory without running DllMain; exported symbols are
		// still resolvable because they live in the export directory,
		// which is mapped regardless.
		loadFlags = windows.DONT_RESOLVE_DLL_REFERENCES
	}

	handle, err := windows.LoadLibraryEx(path, 0, loadFlags)
	if err != nil {
		return &Assembly{Path: path, Error: err.Error()}, nil
	}

	canonical := path
	if resolved, resolveErr := canonicalModulePath(handle); resolveErr == nil {
		canonical = resolved
	}

	return &Assembly{handle: uintptr(handle), Path: canonical}, nil
}

func canonicalModulePath(handle windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_PATH)
	n, err := windows.GetModuleFileName(handle, &buf[0], uint32(len(buf)))
	if err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:n]), nil
}

func resolveLoadedPath(fileName string) (string, error) {
	handle, err := windows.GetModuleHandle(fileName)
	if err != nil {
		return "", fmt.Errorf("module %q is not loaded: %w", fileName, err)
	}
	return canonicalModulePath(handle)
}

// FindSymbol looks up an exported symbol by name. It returns false rather
// than an error on miss.
func (a *Assembly) FindSymbol(name string) (uintptr, bool) {
	if a.handle == 0 {
		return 0, false
	}
	addr, err := windows.GetProcAddress(windows.Handle(a.handle), name)
	if err != nil {
		return 0, false
	}
	return addr, true
}

// Close releases the OS handle. The OS reference-counts the underlying
// mapping across multiple Assembly instances of the same library.
func (a *Assembly) Close() error {
	if a.handle == 0 {
		return nil
	}
	err := windows.FreeLibrary(windows.Handle(a.handle))
	a.handle = 0
	return err
}
