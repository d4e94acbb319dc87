// Package descriptor implements the typed representation of plugin and
// language-module manifests, along with their semantic validation.
// Validation accumulates every problem found and joins them with
// errors.Join rather than failing on the first one, so a caller can report
// a complete list of defects in one pass.
package descriptor

import "github.com/plugify-go/plugify/internal/platform"

// PluginTypeTag is the reserved type string identifying a plugin descriptor,
// as opposed to a language module descriptor: a package whose type is not
// "plugin" is a language module.
const PluginTypeTag = "plugin"

// VarIndexNone is the sentinel value of Method.VarIndex meaning "no
// varargs".
const VarIndexNone = -1

// Identity uniquely names a package within an index. Name is unique within
// the local index and, separately, within the remote index; Type is
// "plugin" or a language identifier.
type Identity struct {
	Name string
	Type string
}

// IsPlugin reports whether the identity names a plugin rather than a
// language module.
func (id Identity) IsPlugin() bool { return id.Type == PluginTypeTag }

// Parameter describes a single function parameter or return value.
type Parameter struct {
	Type        ValueType
	ByReference bool
	Prototype   *Method // only meaningful when Type == Function
}

// Method describes one exported native function.
type Method struct {
	Name             string
	FuncName         string
	ReturnType       Parameter
	ParamTypes       []Parameter
	CallingConvention CallingConvention
	VarIndex         int
}

// PluginReference names a dependency declared by a plugin.
type PluginReference struct {
	Name              string
	RequestedVersion  *int // nil means "no pin" / latest
	Optional          bool
	SupportedPlatforms []platform.Tag
}

// LanguageModuleRef names the language module a plugin is written against.
type LanguageModuleRef struct {
	Name string
}

// Kind discriminates the two Descriptor shapes.
type Kind int

const (
	KindPlugin Kind = iota
	KindLanguageModule
)

// Descriptor is a sum type over the two manifest shapes a package can
// declare: a plugin or a language module. Only the fields relevant to Kind
// are populated; Validate enforces that discipline.
type Descriptor struct {
	Kind Kind

	FileVersion  int
	Version      int
	FriendlyName string

	Description   string
	CreatedBy     string
	CreatedByURL  string
	DocsURL       string
	DownloadURL   string
	SupportURL    string
	UpdateURL     string

	SupportedPlatforms  []platform.Tag
	ResourceDirectories []string

	// Plugin-only fields.
	EntryPoint      string
	LanguageModule  LanguageModuleRef
	Dependencies    []PluginReference
	ExportedMethods []Method

	// LanguageModule-only fields.
	Language          string
	LibraryDirectories []string
}

// IsPlugin reports whether d describes a plugin.
func (d Descriptor) IsPlugin() bool { return d.Kind == KindPlugin }

// TypeTag returns the Identity.Type string this descriptor would carry:
// "plugin" for plugins, or the language module's Language string for
// language modules.
func (d Descriptor) TypeTag() string {
	if d.IsPlugin() {
		return PluginTypeTag
	}
	return d.Language
}
