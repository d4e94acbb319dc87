package descriptor

import "github.com/plugify-go/plugify/internal/platform"

// CallingConvention is a calling-convention identifier attached to a Method.
type CallingConvention string

// conventionKey identifies the calling conventions accepted for a given
// (pointer width, architecture, OS) triple. An absent entry means "any
// value is accepted, unchecked" (64-bit non-Windows x86-64 and ARM64).
type conventionKey struct {
	width int
	arch  platform.Arch
	os    platform.OS
}

var allowedConventions = map[conventionKey][]CallingConvention{
	{64, platform.AMD64, platform.Windows}: {"vectorcall"},
	{32, platform.X86, platform.Windows}:   {"cdecl", "stdcall", "fastcall", "thiscall", "vectorcall"},
	{32, platform.X86, platform.Linux}:     {"cdecl", "stdcall", "fastcall", "thiscall", "vectorcall"},
	{32, platform.X86, platform.Darwin}:    {"cdecl", "stdcall", "fastcall", "thiscall", "vectorcall"},
	{32, platform.ARM, platform.Linux}:     {"soft", "hard"},
	{32, platform.ARM, platform.Windows}:   {"soft", "hard"},
	{32, platform.ARM, platform.Darwin}:    {"soft", "hard"},
}

// AllowedCallingConventions returns the calling conventions permitted for the
// given architecture/OS pair, and whether the set is actually enforced (a
// false "checked" return means any non-empty string is accepted).
func AllowedCallingConventions(os platform.OS, arch platform.Arch) (allowed []CallingConvention, checked bool) {
	width := 64
	switch arch {
	case platform.X86, platform.ARM:
		width = 32
	}
	key := conventionKey{width: width, arch: arch, os: os}
	if list, ok := allowedConventions[key]; ok {
		return list, true
	}
	// 64-bit non-Windows x86-64 and ARM64 (any OS): unchecked.
	return nil, false
}

// ValidCallingConvention reports whether cc is acceptable for the given
// platform. An empty cc is always acceptable (the field is optional).
func ValidCallingConvention(os platform.OS, arch platform.Arch, cc CallingConvention) bool {
	if cc == "" {
		return true
	}
	allowed, checked := AllowedCallingConventions(os, arch)
	if !checked {
		return true
	}
	for _, candidate := range allowed {
		if candidate == cc {
			return true
		}
	}
	return false
}
