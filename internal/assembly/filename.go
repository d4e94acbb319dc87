package assembly

import "runtime"

// LibraryFileName builds the platform-conventional shared library file
// name for a bare module name (no directory, no extension) — e.g.
// "lua" -> "liblua.so" on Linux, "lua.dll" on Windows.
func LibraryFileName(name string) string { return libraryFileName(name) }

// libraryFileName builds the platform-conventional shared library file
// name for a bare module name (no directory, no extension).
func libraryFileName(name string) string {
	switch runtime.GOOS {
	case "windows":
		return name + ".dll"
	case "darwin":
		return "lib" + name + ".dylib"
	default:
		return "lib" + name + ".so"
	}
}
