//go:build !windows

package assembly

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/ebitengine/purego"
)

// dlopen mode flags, mirrored locally rather than relying on
// platform-specific constants in purego itself (it does not export these
// on every platform it supports).
const (
	rtldLazy  = 0x1
	rtldNow   = 0x2
	rtldLocal = 0x0
)

// rtldNoLoad is RTLD_NOLOAD, whose bit differs by platform: 0x4 on Linux,
// 0x10 on Darwin (where 0x4 is RTLD_LOCAL).
var rtldNoLoad = func() int {
	if runtime.GOOS == "darwin" {
		return 0x10
	}
	return 0x4
}()

func dlopenFlags(flags OpenFlags) int {
	mode := rtldLocal
	if flags.ResolveNow {
		mode |= rtldNow
	} else {
		mode |= rtldLazy
	}
	return mode
}

func openNative(path string, flags OpenFlags) (*Assembly, error) {
	handle, err := purego.Dlopen(path, dlopenFlags(flags))
	if err != nil {
		return &Assembly{Path: path, Error: err.Error()}, nil
	}
	return &Assembly{handle: handle, Path: canonicalizeMappedPath(path)}, nil
}

// resolveLoadedPath asks the dynamic linker for a handle to an
// already-loaded module with the given file name, without loading a new
// copy (RTLD_NOLOAD), then canonicalizes the path from the process's
// memory map.
func resolveLoadedPath(fileName string) (string, error) {
	handle, err := purego.Dlopen(fileName, rtldNow|rtldNoLoad)
	if err != nil {
		return "", fmt.Errorf("module %q is not loaded: %w", fileName, err)
	}
	_ = handle // only the mapping's existence matters here
	return canonicalizeMappedPath(fileName), nil
}

// canonicalizeMappedPath resolves fileName to the absolute path the loader
// actually mapped, by scanning /proc/self/maps on Linux. On platforms
// without that facility (Darwin) or if the scan fails, fileName itself is
// returned unchanged — still a valid, if non-canonical, path.
func canonicalizeMappedPath(fileName string) string {
	if runtime.GOOS != "linux" {
		return fileName
	}
	base := fileName
	if idx := strings.LastIndexByte(fileName, '/'); idx >= 0 {
		base = fileName[idx+1:]
	}
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return fileName
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasSuffix(line, base) {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				return fields[len(fields)-1]
			}
		}
	}
	return fileName
}

// FindSymbol looks up an exported symbol by name. It returns false rather
// than an error on miss.
func (a *Assembly) FindSymbol(name string) (uintptr, bool) {
	if a.handle == 0 {
		return 0, false
	}
	addr, err := purego.Dlsym(a.handle, name)
	if err != nil || addr == 0 {
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
	err := purego.Dlclose(a.handle)
	a.handle = 0
	return err
}
