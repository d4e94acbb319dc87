//go:build !windows

package assembly

// FindVirtualTable is optional outside Windows x86-64: the RTTI layout it
// depends on is undocumented (Itanium ABI vtables are discoverable in
// principle but not specified here), so this always reports unsupported.
func (a *Assembly) FindVirtualTable(className string, decorated bool) (uintptr, error) {
	return 0, ErrVirtualTableUnsupported
}
