//go:build windows

package assembly

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"
)

// FindVirtualTable walks the Microsoft x86-64 RTTI layout to recover a
// class's virtual table address, exactly as the original C++
// implementation's assembly_windows.cpp does:
//
//  1. Form the decorated type-descriptor name (".?AV<class>@@") unless the
//     caller already supplies a decorated string.
//  2. Scan the module's .data section (mapped into this process, since the
//     module was loaded into our own address space) for that name.
//  3. Walk back 16 bytes (two 8-byte header fields on x64: vfptr + spare)
//     to the RTTI type descriptor's own address, and convert it to an
//     RVA relative to the module base.
//  4. Scan .rdata for a Complete Object Locator referencing that RVA in
//     its pTypeDescriptor field, validating signature == 1 and
//     offset == 0 (the "whole object, no virtual inheritance" case).
//  5. Scan .rdata for the 8-byte pointer-to-locator slot that every
//     vftable carries immediately before its first entry; the vtable
//     itself starts 8 bytes after that slot.
func (a *Assembly) FindVirtualTable(className string, decorated bool) (uintptr, error) {
	if a.handle == 0 {
		return 0, fmt.Errorf("assembly: module not loaded")
	}

	needle := decoratedName(className, decorated)

	dataMem, dataBase, ok := a.sectionMemory(".data")
	if !ok {
		return 0, fmt.Errorf("assembly: module has no .data section")
	}
	rdataMem, rdataBase, ok := a.sectionMemory(".rdata")
	if !ok {
		return 0, fmt.Errorf("assembly: module has no .rdata section")
	}

	nameOffset := bytes.Index(dataMem, needle)
	if nameOffset < 0 {
		return 0, fmt.Errorf("assembly: type descriptor for %q not found", className)
	}
	if nameOffset < 16 {
		return 0, fmt.Errorf("assembly: type descriptor for %q has no room for its header", className)
	}
	typeDescriptorAddr := dataBase + uintptr(nameOffset) - 16
	typeDescriptorRVA := uint32(typeDescriptorAddr - a.handle)

	locatorAddr, err := findCompleteObjectLocator(rdataMem, rdataBase, typeDescriptorRVA)
	if err != nil {
		return 0, fmt.Errorf("assembly: %q: %w", className, err)
	}

	vtableAddr, err := findVTableReferencing(rdataMem, rdataBase, locatorAddr)
	if err != nil {
		return 0, fmt.Errorf("assembly: %q: %w", className, err)
	}
	return vtableAddr, nil
}

func decoratedName(className string, decorated bool) []byte {
	if decorated {
		return append([]byte(className), 0)
	}
	return append([]byte(".?AV"+className+"@@"), 0)
}

// findCompleteObjectLocator scans rdata 4 bytes at a time for a
// pTypeDescriptor field equal to typeDescriptorRVA, validating the
// signature and offset fields of the enclosing RTTICompleteObjectLocator
// (x64 layout: signature, offset, cdOffset, pTypeDescriptor, ...).
func findCompleteObjectLocator(rdataMem []byte, rdataBase uintptr, typeDescriptorRVA uint32) (uintptr, error) {
	const fieldOffsetInStruct = 12 // signature(4) + offset(4) + cdOffset(4)

	for i := 0; i+4 <= len(rdataMem); i += 4 {
		value := binary.LittleEndian.Uint32(rdataMem[i : i+4])
		if value != typeDescriptorRVA {
			continue
		}
		structStart := i - fieldOffsetInStruct
		if structStart < 0 || structStart+8 > len(rdataMem) {
			continue
		}
		signature := binary.LittleEndian.Uint32(rdataMem[structStart : structStart+4])
		offset := binary.LittleEndian.Uint32(rdataMem[structStart+4 : structStart+8])
		if signature == 1 && offset == 0 {
			return rdataBase + uintptr(structStart), nil
		}
	}
	return 0, fmt.Errorf("no complete object locator references the type descriptor")
}

// findVTableReferencing scans rdata 8 bytes at a time for the
// pointer-to-locator slot every vftable carries at index -1; the vtable
// begins immediately after that slot.
func findVTableReferencing(rdataMem []byte, rdataBase uintptr, locatorAddr uintptr) (uintptr, error) {
	for i := 0; i+8 <= len(rdataMem); i += 8 {
		value := uintptr(binary.LittleEndian.Uint64(rdataMem[i : i+8]))
		if value == locatorAddr {
			return rdataBase + uintptr(i) + 8, nil
		}
	}
	return 0, fmt.Errorf("no vftable references the complete object locator")
}

// sectionMemory returns a byte slice viewing the named section's bytes as
// mapped into this process (the module was loaded into our own address
// space), plus the section's absolute base address.
func (a *Assembly) sectionMemory(name string) ([]byte, uintptr, bool) {
	sec, ok := a.Section(name)
	if !ok || sec.Size == 0 {
		return nil, 0, false
	}
	base := a.handle + sec.VirtualBase
	mem := unsafe.Slice((*byte)(unsafe.Pointer(base)), int(sec.Size))
	return mem, base, true
}
