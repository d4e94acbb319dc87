// Package assembly opens shared libraries across operating systems,
// enumerates their code/data sections, and resolves exported symbols
// (including, on platforms where the layout is documented, C++ virtual
// tables). An Assembly owns its OS handle; Close releases it via the
// OS-specific call. Multiple Assembly instances for the same library are
// permitted — the OS reference-counts the underlying mapping.
package assembly

import "fmt"

// Section is a named region of a loaded shared library.
type Section struct {
	Name        string
	VirtualBase uintptr
	Size        uint64
}

// OpenFlags controls how the OS loader resolves a library. The zero value
// is the default: resolve symbols lazily and do not run static
// initializers ahead of the caller's control.
type OpenFlags struct {
	// ResolveNow forces immediate (non-lazy) symbol resolution where the
	// platform distinguishes the two.
	ResolveNow bool
	// RunInitializers allows the platform loader to execute static
	// initializers / DllMain at load time instead of suppressing them.
	// Suppression is only honored where the platform supports it.
	RunInitializers bool
}

// Assembly is a loaded shared library plus its canonical on-disk path, any
// load-time error, and (optionally) its parsed section table.
type Assembly struct {
	handle  uintptr
	Path    string
	Error   string
	Sections []Section
	text    *Section
}

// Handle returns the OS-native library handle. Exposed for language
// modules that need to hand the raw handle to a runtime-specific loader
// (e.g. purego.RegisterLibFunc).
func (a *Assembly) Handle() uintptr { return a.handle }

// TextSection returns the executable section cached at load time (the
// ".text" equivalent on the current platform), if section parsing was
// requested and succeeded.
func (a *Assembly) TextSection() (Section, bool) {
	if a.text == nil {
		return Section{}, false
	}
	return *a.text, true
}

// Section looks up a named section by exact match.
func (a *Assembly) Section(name string) (Section, bool) {
	for _, s := range a.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

func cacheTextSection(a *Assembly, candidates ...string) {
	for _, name := range candidates {
		if s, ok := a.Section(name); ok {
			sec := s
			a.text = &sec
			return
		}
	}
}

// OpenByPath loads the library at path with the given flags. When
// wantSections is true, the module's object format is parsed in memory to
// populate Sections and the cached executable section. A failed OS load is
// not returned as a Go error: the returned Assembly has no handle and
// carries the loader's message in Error, and a section-parsing failure is
// recorded in Error as well. Callers above this layer (language modules,
// the plugin manager) check Error and turn it into a logged, non-fatal
// diagnostic instead of propagating it further.
func OpenByPath(path string, flags OpenFlags, wantSections bool) (*Assembly, error) {
	a, err := openNative(path, flags)
	if err != nil {
		return nil, err
	}
	if wantSections {
		if err := parseSections(a); err != nil {
			a.Error = fmt.Sprintf("parse sections: %v", err)
		}
	}
	return a, nil
}

// OpenByName constructs the platform library filename for name (appending
// the platform suffix unless withExtension is true), resolves an
// already-loaded module with that name, canonicalizes its on-disk path,
// and delegates to OpenByPath.
func OpenByName(name string, flags OpenFlags, wantSections bool, withExtension bool) (*Assembly, error) {
	fileName := name
	if !withExtension {
		fileName = libraryFileName(name)
	}
	path, err := resolveLoadedPath(fileName)
	if err != nil {
		return nil, err
	}
	return OpenByPath(path, flags, wantSections)
}
