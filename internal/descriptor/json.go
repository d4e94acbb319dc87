package descriptor

import (
	"encoding/json"
	"fmt"

	"github.com/plugify-go/plugify/internal/platform"
)

// wireTypeNames is the canonical (non-buggy) string encoding of ValueType
// used on the wire. It is intentionally kept separate from the display
// table in valuetype.go, which carries the well-known off-by-one quirk for
// struct types — that quirk affects only String()/logging output, not
// descriptor serialization.
var wireTypeNames = map[ValueType]string{
	Invalid: "invalid", Void: "void", Bool: "bool",
	Char8: "char8", Char16: "char16",
	Int8: "int8", Int16: "int16", Int32: "int32", Int64: "int64",
	UInt8: "uint8", UInt16: "uint16", UInt32: "uint32", UInt64: "uint64",
	Pointer: "ptr", Float: "float", Double: "double",
	Function: "function", String: "string",
	ArrayBool: "bool[]", ArrayChar8: "char8[]", ArrayChar16: "char16[]",
	ArrayInt8: "int8[]", ArrayInt16: "int16[]", ArrayInt32: "int32[]", ArrayInt64: "int64[]",
	ArrayUInt8: "uint8[]", ArrayUInt16: "uint16[]", ArrayUInt32: "uint32[]", ArrayUInt64: "uint64[]",
	ArrayPointer: "ptr[]", ArrayFloat: "float[]", ArrayDouble: "double[]", ArrayString: "string[]",
	Vector2: "vec2", Vector3: "vec3", Vector4: "vec4", Matrix4x4: "mat4x4",
}

var wireNameTypes = func() map[string]ValueType {
	out := make(map[string]ValueType, len(wireTypeNames))
	for t, n := range wireTypeNames {
		out[n] = t
	}
	return out
}()

func (t ValueType) MarshalJSON() ([]byte, error) {
	name, ok := wireTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("value type %d has no wire encoding", t)
	}
	return json.Marshal(name)
}

func (t *ValueType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := wireNameTypes[name]
	if !ok {
		return fmt.Errorf("unknown value type %q", name)
	}
	*t = v
	return nil
}

type jsonParameter struct {
	Type        ValueType   `json:"type"`
	ByReference bool        `json:"byReference,omitempty"`
	Prototype   *jsonMethod `json:"prototype,omitempty"`
}

type jsonMethod struct {
	Name              string            `json:"name"`
	FuncName          string            `json:"funcName"`
	ReturnType        jsonParameter     `json:"returnType"`
	ParamTypes        []jsonParameter   `json:"paramTypes,omitempty"`
	CallingConvention CallingConvention `json:"callingConvention,omitempty"`
	VarIndex          int               `json:"varIndex"`
}

type jsonPluginReference struct {
	Name               string   `json:"name"`
	Optional           bool     `json:"optional,omitempty"`
	RequestedVersion   *int     `json:"requestedVersion,omitempty"`
	SupportedPlatforms []string `json:"supportedPlatforms,omitempty"`
}

type jsonLanguageModuleRef struct {
	Name string `json:"name"`
}

// jsonDescriptor is the on-disk representation of a plugin or language
// module descriptor. Which optional fields are populated discriminates the
// two kinds: a descriptor carrying "entryPoint" or "languageModule" is a
// plugin, one carrying "language" is a language module.
type jsonDescriptor struct {
	FileVersion  int    `json:"fileVersion"`
	Version      int    `json:"version"`
	FriendlyName string `json:"friendlyName"`

	Description  string `json:"description,omitempty"`
	CreatedBy    string `json:"createdBy,omitempty"`
	CreatedByURL string `json:"createdByURL,omitempty"`
	DocsURL      string `json:"docsURL,omitempty"`
	DownloadURL  string `json:"downloadURL,omitempty"`
	SupportURL   string `json:"supportURL,omitempty"`
	UpdateURL    string `json:"updateURL,omitempty"`

	SupportedPlatforms  []string `json:"supportedPlatforms,omitempty"`
	ResourceDirectories []string `json:"resourceDirectories,omitempty"`

	EntryPoint      string                 `json:"entryPoint,omitempty"`
	LanguageModule  *jsonLanguageModuleRef `json:"languageModule,omitempty"`
	Dependencies    []jsonPluginReference  `json:"dependencies,omitempty"`
	ExportedMethods []jsonMethod           `json:"exportedMethods,omitempty"`

	Language           string   `json:"language,omitempty"`
	LibraryDirectories []string `json:"libraryDirectories,omitempty"`
}

func tagsOf(ss []string) []platform.Tag {
	if ss == nil {
		return nil
	}
	out := make([]platform.Tag, len(ss))
	for i, s := range ss {
		out[i] = platform.Tag(s)
	}
	return out
}

func stringsOf(tags []platform.Tag) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

func fromJSONParameter(jp jsonParameter) Parameter {
	p := Parameter{Type: jp.Type, ByReference: jp.ByReference}
	if jp.Prototype != nil {
		m := fromJSONMethod(*jp.Prototype)
		p.Prototype = &m
	}
	return p
}

func fromJSONMethod(jm jsonMethod) Method {
	m := Method{
		Name:              jm.Name,
		FuncName:          jm.FuncName,
		ReturnType:        fromJSONParameter(jm.ReturnType),
		CallingConvention: jm.CallingConvention,
		VarIndex:          jm.VarIndex,
	}
	for _, jp := range jm.ParamTypes {
		m.ParamTypes = append(m.ParamTypes, fromJSONParameter(jp))
	}
	return m
}

// Decode parses raw descriptor JSON, discriminating plugin vs. language
// module by which kind-specific fields are present.
func Decode(data []byte) (Descriptor, error) {
	var raw jsonDescriptor
	if err := json.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{
		FileVersion:         raw.FileVersion,
		Version:             raw.Version,
		FriendlyName:        raw.FriendlyName,
		Description:         raw.Description,
		CreatedBy:           raw.CreatedBy,
		CreatedByURL:        raw.CreatedByURL,
		DocsURL:             raw.DocsURL,
		DownloadURL:         raw.DownloadURL,
		SupportURL:          raw.SupportURL,
		UpdateURL:           raw.UpdateURL,
		SupportedPlatforms:  tagsOf(raw.SupportedPlatforms),
		ResourceDirectories: raw.ResourceDirectories,
	}

	if raw.Language != "" {
		d.Kind = KindLanguageModule
		d.Language = raw.Language
		d.LibraryDirectories = raw.LibraryDirectories
		return d, nil
	}

	d.Kind = KindPlugin
	d.EntryPoint = raw.EntryPoint
	if raw.LanguageModule != nil {
		d.LanguageModule = LanguageModuleRef{Name: raw.LanguageModule.Name}
	}
	for _, dep := range raw.Dependencies {
		d.Dependencies = append(d.Dependencies, PluginReference{
			Name:               dep.Name,
			RequestedVersion:   dep.RequestedVersion,
			Optional:           dep.Optional,
			SupportedPlatforms: tagsOf(dep.SupportedPlatforms),
		})
	}
	for _, m := range raw.ExportedMethods {
		d.ExportedMethods = append(d.ExportedMethods, fromJSONMethod(m))
	}
	return d, nil
}

func toJSONParameter(p Parameter) jsonParameter {
	jp := jsonParameter{Type: p.Type, ByReference: p.ByReference}
	if p.Prototype != nil {
		jm := toJSONMethod(*p.Prototype)
		jp.Prototype = &jm
	}
	return jp
}

func toJSONMethod(m Method) jsonMethod {
	jm := jsonMethod{
		Name:              m.Name,
		FuncName:          m.FuncName,
		ReturnType:        toJSONParameter(m.ReturnType),
		CallingConvention: m.CallingConvention,
		VarIndex:          m.VarIndex,
	}
	for _, p := range m.ParamTypes {
		jm.ParamTypes = append(jm.ParamTypes, toJSONParameter(p))
	}
	return jm
}

// Encode serializes d to its canonical JSON form.
func Encode(d Descriptor) ([]byte, error) {
	raw := jsonDescriptor{
		FileVersion:         d.FileVersion,
		Version:             d.Version,
		FriendlyName:        d.FriendlyName,
		Description:         d.Description,
		CreatedBy:           d.CreatedBy,
		CreatedByURL:        d.CreatedByURL,
		DocsURL:             d.DocsURL,
		DownloadURL:         d.DownloadURL,
		SupportURL:          d.SupportURL,
		UpdateURL:           d.UpdateURL,
		SupportedPlatforms:  stringsOf(d.SupportedPlatforms),
		ResourceDirectories: d.ResourceDirectories,
	}

	if !d.IsPlugin() {
		raw.Language = d.Language
		raw.LibraryDirectories = d.LibraryDirectories
		return json.Marshal(raw)
	}

	raw.EntryPoint = d.EntryPoint
	raw.LanguageModule = &jsonLanguageModuleRef{Name: d.LanguageModule.Name}
	for _, dep := range d.Dependencies {
		raw.Dependencies = append(raw.Dependencies, jsonPluginReference{
			Name:               dep.Name,
			Optional:           dep.Optional,
			RequestedVersion:   dep.RequestedVersion,
			SupportedPlatforms: stringsOf(dep.SupportedPlatforms),
		})
	}
	for _, m := range d.ExportedMethods {
		raw.ExportedMethods = append(raw.ExportedMethods, toJSONMethod(m))
	}
	return json.Marshal(raw)
}
