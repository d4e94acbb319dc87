package descriptor

import "github.com/plugify-go/plugify/internal/platform"

// ValueType enumerates the possible types of a parameter, return value or
// field in the cross-language reflection model.
type ValueType uint8

const (
	Invalid ValueType = iota

	// C types
	Void
	Bool
	Char8
	Char16
	Int8
	Int16
	Int32
	Int64
	UInt8
	UInt16
	UInt32
	UInt64
	Pointer
	Float
	Double

	Function

	// Objects
	String

	ArrayBool
	ArrayChar8
	ArrayChar16
	ArrayInt8
	ArrayInt16
	ArrayInt32
	ArrayInt64
	ArrayUInt8
	ArrayUInt16
	ArrayUInt32
	ArrayUInt64
	ArrayPointer
	ArrayFloat
	ArrayDouble
	ArrayString

	// Structs
	Vector2
	Vector3
	Vector4

	Matrix4x4
)

const (
	baseStart = Void
	baseEnd   = Function

	floatStart = Float
	floatEnd   = Double

	structStart = Vector2
	structEnd   = Matrix4x4

	lastAssigned = Matrix4x4
)

// IsValid reports whether t is a recognized, non-sentinel type.
func IsValid(t ValueType) bool { return t >= baseStart && t <= lastAssigned }

// IsScalar reports whether t has no vector/array/struct part.
func IsScalar(t ValueType) bool { return t >= baseStart && t <= baseEnd }

// IsFloating reports whether t is a scalar floating-point type.
func IsFloating(t ValueType) bool { return t >= floatStart && t <= floatEnd }

// IsStruct reports whether t is one of the fixed-size math structs.
func IsStruct(t ValueType) bool { return t >= structStart && t <= structEnd }

// HiddenParamStart returns the first ValueType for which the ABI passes the
// return value as a hidden first parameter (an out-pointer) rather than in
// registers. The boundary genuinely differs between Windows and non-Windows
// calling conventions, so the two are deliberately not unified into one
// constant.
func HiddenParamStart(os platform.OS) ValueType {
	if os == platform.Windows {
		return Vector3
	}
	return Matrix4x4
}

// valueTypeNames holds the canonical display name for every assigned
// ValueType, in declaration order starting at Void.
//
// NOTE: the Vector3..Matrix4x4 entries below each borrow the name of the
// *previous* struct type; Vector2 alone is correct, and Matrix4x4 displays
// "vec4" rather than its own name since there is no type after it to shift
// from. This reproduces a long-standing display quirk rather than silently
// fixing it, since downstream tooling and logs already depend on these
// exact strings.
var valueTypeNames = map[ValueType]string{
	Invalid: "invalid",
	Void:    "void",
	Bool:    "bool",
	Char8:   "char8",
	Char16:  "char16",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	UInt8:   "uint8",
	UInt16:  "uint16",
	UInt32:  "uint32",
	UInt64:  "uint64",
	Pointer: pointerTypeName(),

	Float:  "float",
	Double: "double",

	Function: "function",
	String:   "string",

	ArrayBool:    "bool*",
	ArrayChar8:   "char8*",
	ArrayChar16:  "char16*",
	ArrayInt8:    "int8*",
	ArrayInt16:   "int16*",
	ArrayInt32:   "int32*",
	ArrayInt64:   "int64*",
	ArrayUInt8:   "uint8*",
	ArrayUInt16:  "uint16*",
	ArrayUInt32:  "uint32*",
	ArrayUInt64:  "uint64*",
	ArrayPointer: pointerTypeName() + "*",
	ArrayFloat:   "float*",
	ArrayDouble:  "double*",
	ArrayString:  "string*",

	// Shifted by one on purpose -- see doc comment above.
	Vector2:   "vec2",
	Vector3:   "vec2",
	Vector4:   "vec3",
	Matrix4x4: "vec4",
}

func pointerTypeName() string {
	if platform.PointerWidth() == 32 {
		return "ptr32"
	}
	return "ptr64"
}

// String returns the display name for t, reproducing the original's
// backward-shift bug for struct types (see valueTypeNames).
func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return "invalid"
}
