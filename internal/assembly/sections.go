package assembly

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"fmt"
	"runtime"
)

// parseSections opens a.Path a second time as an object file (independent
// of the OS loader's mapping) and populates a.Sections plus the cached
// executable section. The three object formats below cover every platform
// Plugify-Go targets; debug/pe, debug/elf and debug/macho are the
// standard library's own object-file readers and have no substitute in
// this corpus's third-party stack, so using them here is a deliberate
// exception to "prefer a pack dependency".
func parseSections(a *Assembly) error {
	switch runtime.GOOS {
	case "windows":
		return parsePE(a)
	case "darwin":
		return parseMachO(a)
	default:
		return parseELF(a)
	}
}

func parsePE(a *Assembly) error {
	f, err := pe.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open PE image: %w", err)
	}
	defer f.Close()

	for _, sec := range f.Sections {
		a.Sections = append(a.Sections, Section{
			Name:        sec.Name,
			VirtualBase: uintptr(sec.VirtualAddress),
			Size:        uint64(sec.VirtualSize),
		})
	}
	cacheTextSection(a, ".text")
	return nil
}

func parseELF(a *Assembly) error {
	f, err := elf.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open ELF image: %w", err)
	}
	defer f.Close()

	for _, sec := range f.Sections {
		a.Sections = append(a.Sections, Section{
			Name:        sec.Name,
			VirtualBase: uintptr(sec.Addr),
			Size:        sec.Size,
		})
	}
	cacheTextSection(a, ".text")
	return nil
}

func parseMachO(a *Assembly) error {
	f, err := macho.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open Mach-O image: %w", err)
	}
	defer f.Close()

	for _, sec := range f.Sections {
		a.Sections = append(a.Sections, Section{
			Name:        sec.Name,
			VirtualBase: uintptr(sec.Addr),
			Size:        uint64(sec.Size),
		})
	}
	cacheTextSection(a, "__text")
	return nil
}
