package assembly

import (
	"runtime"
	"strings"
	"testing"
)

func TestLibraryFileNameMatchesCurrentPlatformConvention(t *testing.T) {
	got := libraryFileName("demo")

	switch runtime.GOOS {
	case "windows":
		if got != "demo.dll" {
			t.Fatalf("windows file name = %q, want demo.dll", got)
		}
	case "darwin":
		if got != "libdemo.dylib" {
			t.Fatalf("darwin file name = %q, want libdemo.dylib", got)
		}
	default:
		if got != "libdemo.so" {
			t.Fatalf("posix file name = %q, want libdemo.so", got)
		}
	}
}

func TestLibraryFileNameAlwaysEmbedsBareName(t *testing.T) {
	got := libraryFileName("mymodule")
	if !strings.Contains(got, "mymodule") {
		t.Fatalf("file name %q does not embed the module name", got)
	}
}
