package assembly

import "errors"

// ErrVirtualTableUnsupported is returned by FindVirtualTable on platforms
// where the RTTI layout this walk depends on is not documented (anything
// other than Windows x86-64). The spec treats the operation as optional
// there.
var ErrVirtualTableUnsupported = errors.New("assembly: virtual table lookup not supported on this platform")
