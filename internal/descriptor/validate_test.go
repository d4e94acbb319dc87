package descriptor_test

import (
	"io"
	"log"
	"testing"

	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/platform"
)

func TestValidatePluginRequiresEntryPointAndLanguageModule(t *testing.T) {
	t.Parallel()
	d := descriptor.Descriptor{
		Kind:         descriptor.KindPlugin,
		FileVersion:  1,
		Version:      0,
		FriendlyName: "A",
	}
	_, err := descriptor.Validate(d, platform.Linux, platform.AMD64, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatal("expected validation to fail for a plugin missing entryPoint/languageModule")
	}
}

func TestValidateLanguageModuleRejectsReservedPluginTag(t *testing.T) {
	t.Parallel()
	d := descriptor.Descriptor{
		Kind:         descriptor.KindLanguageModule,
		FileVersion:  1,
		FriendlyName: "M",
		Language:     descriptor.PluginTypeTag,
	}
	_, err := descriptor.Validate(d, platform.Linux, platform.AMD64, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatal("expected validation to reject language == \"plugin\"")
	}
}

func TestValidateDedupesDuplicateDependenciesKeepingFirst(t *testing.T) {
	t.Parallel()
	v5 := 5
	v9 := 9
	d := descriptor.Descriptor{
		Kind:         descriptor.KindPlugin,
		FileVersion:  1,
		FriendlyName: "A",
		EntryPoint:   "a",
		LanguageModule: descriptor.LanguageModuleRef{Name: "lua"},
		Dependencies: []descriptor.PluginReference{
			{Name: "dep", RequestedVersion: &v5},
			{Name: "dep", RequestedVersion: &v9},
		},
	}
	out, err := descriptor.Validate(d, platform.Linux, platform.AMD64, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(out.Dependencies) != 1 {
		t.Fatalf("dependencies = %+v, want exactly one (first occurrence kept)", out.Dependencies)
	}
	if *out.Dependencies[0].RequestedVersion != v5 {
		t.Fatalf("kept dependency requestedVersion = %d, want %d", *out.Dependencies[0].RequestedVersion, v5)
	}
}

func TestValidateRejectsVoidParameter(t *testing.T) {
	t.Parallel()
	d := descriptor.Descriptor{
		Kind:           descriptor.KindPlugin,
		FileVersion:    1,
		FriendlyName:   "A",
		EntryPoint:     "a",
		LanguageModule: descriptor.LanguageModuleRef{Name: "lua"},
		ExportedMethods: []descriptor.Method{{
			Name:       "m",
			FuncName:   "m_impl",
			ReturnType: descriptor.Parameter{Type: descriptor.Void},
			ParamTypes: []descriptor.Parameter{{Type: descriptor.Void}},
			VarIndex:   descriptor.VarIndexNone,
		}},
	}
	_, err := descriptor.Validate(d, platform.Linux, platform.AMD64, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatal("expected validation to reject a void-typed parameter")
	}
}

func TestEncodeDecodeRoundTripsAPlugin(t *testing.T) {
	t.Parallel()
	v3 := 3
	original := descriptor.Descriptor{
		Kind:           descriptor.KindPlugin,
		FileVersion:    1,
		Version:        2,
		FriendlyName:   "A",
		EntryPoint:     "a.dll",
		LanguageModule: descriptor.LanguageModuleRef{Name: "lua"},
		Dependencies:   []descriptor.PluginReference{{Name: "dep", RequestedVersion: &v3}},
		ExportedMethods: []descriptor.Method{{
			Name:       "m",
			FuncName:   "m_impl",
			ReturnType: descriptor.Parameter{Type: descriptor.Int32},
			VarIndex:   descriptor.VarIndexNone,
		}},
	}

	data, err := descriptor.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := descriptor.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.FriendlyName != original.FriendlyName || decoded.EntryPoint != original.EntryPoint {
		t.Fatalf("round-trip mismatch: %+v vs %+v", decoded, original)
	}
	if len(decoded.Dependencies) != 1 || decoded.Dependencies[0].Name != "dep" {
		t.Fatalf("dependency round-trip mismatch: %+v", decoded.Dependencies)
	}
	if *decoded.Dependencies[0].RequestedVersion != v3 {
		t.Fatalf("requestedVersion round-trip mismatch: %d", *decoded.Dependencies[0].RequestedVersion)
	}
}
