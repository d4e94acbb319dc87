// Package platform reifies the compile-time platform and pointer-width
// facts that the rest of the core dispatches on: a small enum evaluated
// once at startup instead of scattered runtime.GOOS/runtime.GOARCH checks.
package platform

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
)

// OS identifies a target operating system family.
type OS string

const (
	Windows OS = "windows"
	Linux   OS = "linux"
	Darwin  OS = "darwin"
)

// Arch identifies a target instruction set.
type Arch string

const (
	AMD64 Arch = "amd64"
	ARM64 Arch = "arm64"
	X86   Arch = "386"
	ARM   Arch = "arm"
)

// Tag is the platform string carried on descriptors and manifests, of the
// form "<os>-<arch>" (e.g. "windows-amd64"). Comparison between tags is
// always exact-match.
type Tag string

// Current returns the compile-time platform tag for the running binary.
func Current() Tag {
	return Tag(runtime.GOOS + "-" + runtime.GOARCH)
}

// CurrentOS returns the normalized OS family for the running binary.
func CurrentOS() OS {
	switch runtime.GOOS {
	case "windows":
		return Windows
	case "darwin":
		return Darwin
	default:
		return Linux
	}
}

// CurrentArch returns the normalized architecture for the running binary.
func CurrentArch() Arch {
	switch runtime.GOARCH {
	case "amd64":
		return AMD64
	case "arm64":
		return ARM64
	case "386":
		return X86
	case "arm":
		return ARM
	default:
		return Arch(runtime.GOARCH)
	}
}

// PointerWidth returns 32 or 64 depending on the running architecture.
func PointerWidth() int {
	switch CurrentArch() {
	case X86, ARM:
		return 32
	default:
		return 64
	}
}

// Facts describes environment facts gathered for compatibility and
// telemetry purposes. HostVersion is best-effort: when gopsutil cannot
// determine it (containers, restricted sandboxes) it is left empty and
// callers should treat that as "unknown", not as a failure.
type Facts struct {
	OS            OS
	Arch          Arch
	Tag           Tag
	HostVersion   string
	HostPlatform  string
	KernelVersion string
}

// Gather collects the current platform facts, falling back to the
// compile-time constants alone when the host introspection library cannot
// read the environment (e.g. inside a minimal container).
func Gather() Facts {
	facts := Facts{OS: CurrentOS(), Arch: CurrentArch(), Tag: Current()}
	info, err := host.Info()
	if err != nil || info == nil {
		return facts
	}
	facts.HostVersion = info.PlatformVersion
	facts.HostPlatform = info.Platform
	facts.KernelVersion = info.KernelVersion
	return facts
}
