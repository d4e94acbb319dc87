package descriptor

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/plugify-go/plugify/internal/platform"
)

// ValidationError accumulates every problem found while validating a
// descriptor. A descriptor carrying at least one ValidationError is dropped
// by the caller, which logs the accumulated explanation.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	return errors.Join(e.Problems...).Error()
}

func (e *ValidationError) Unwrap() []error { return e.Problems }

// Validate checks d's required fields and returns a normalized copy
// (dependencies/methods deduplicated by name, first occurrence wins) along
// with a *ValidationError if any required check failed. Warnings (duplicate
// collapsing) are logged through logger, which may be nil to discard them.
func Validate(d Descriptor, os platform.OS, arch platform.Arch, logger *log.Logger) (Descriptor, error) {
	var problems []error
	warn := func(format string, args ...interface{}) {
		if logger != nil {
			logger.Printf(format, args...)
		}
	}

	if d.FileVersion < 1 {
		problems = append(problems, fmt.Errorf("fileVersion must be >= 1, got %d", d.FileVersion))
	}
	if d.Version < 0 {
		problems = append(problems, fmt.Errorf("version must be >= 0, got %d", d.Version))
	}
	if strings.TrimSpace(d.FriendlyName) == "" {
		problems = append(problems, errors.New("friendlyName must not be empty"))
	}
	for i, dir := range d.ResourceDirectories {
		if strings.TrimSpace(dir) == "" {
			problems = append(problems, fmt.Errorf("resourceDirectories[%d] must not be empty", i))
		}
	}

	switch d.Kind {
	case KindPlugin:
		validatePlugin(&d, os, arch, &problems, warn)
	case KindLanguageModule:
		validateLanguageModule(&d, &problems)
	default:
		problems = append(problems, fmt.Errorf("unknown descriptor kind %d", d.Kind))
	}

	if len(problems) > 0 {
		return d, &ValidationError{Problems: problems}
	}
	return d, nil
}

func validatePlugin(d *Descriptor, os platform.OS, arch platform.Arch, problems *[]error, warn func(string, ...interface{})) {
	if strings.TrimSpace(d.EntryPoint) == "" {
		*problems = append(*problems, errors.New("entryPoint must not be empty"))
	}
	if strings.TrimSpace(d.LanguageModule.Name) == "" {
		*problems = append(*problems, errors.New("languageModule.name must not be empty"))
	}

	d.Dependencies = dedupeDependencies(d.Dependencies, problems, warn)
	d.ExportedMethods = dedupeMethods(d.ExportedMethods, os, arch, problems, warn)
}

func validateLanguageModule(d *Descriptor, problems *[]error) {
	lang := strings.TrimSpace(d.Language)
	if lang == "" {
		*problems = append(*problems, errors.New("language must not be empty"))
	} else if lang == PluginTypeTag {
		*problems = append(*problems, fmt.Errorf("language must not be the reserved value %q", PluginTypeTag))
	}
	for i, dir := range d.LibraryDirectories {
		if strings.TrimSpace(dir) == "" {
			*problems = append(*problems, fmt.Errorf("libraryDirectories[%d] must not be empty", i))
		}
	}
}

func dedupeDependencies(deps []PluginReference, problems *[]error, warn func(string, ...interface{})) []PluginReference {
	seen := make(map[string]struct{}, len(deps))
	out := make([]PluginReference, 0, len(deps))
	for i, dep := range deps {
		name := strings.TrimSpace(dep.Name)
		if name == "" {
			*problems = append(*problems, fmt.Errorf("dependencies[%d] has empty name", i))
			continue
		}
		if dep.RequestedVersion != nil && *dep.RequestedVersion < 0 {
			*problems = append(*problems, fmt.Errorf("dependencies[%d] requestedVersion must be >= 0", i))
			continue
		}
		if _, ok := seen[name]; ok {
			warn("duplicate dependency %q collapsed to first occurrence", name)
			continue
		}
		seen[name] = struct{}{}
		out = append(out, dep)
	}
	return out
}

func dedupeMethods(methods []Method, os platform.OS, arch platform.Arch, problems *[]error, warn func(string, ...interface{})) []Method {
	seen := make(map[string]struct{}, len(methods))
	out := make([]Method, 0, len(methods))
	for i, m := range methods {
		name := strings.TrimSpace(m.Name)
		funcName := strings.TrimSpace(m.FuncName)
		if name == "" {
			*problems = append(*problems, fmt.Errorf("exportedMethods[%d] has empty name", i))
			continue
		}
		if funcName == "" {
			*problems = append(*problems, fmt.Errorf("exportedMethods[%d] has empty funcName", i))
			continue
		}
		if _, ok := seen[name]; ok {
			warn("duplicate method %q collapsed to first occurrence", name)
			continue
		}

		if m.ReturnType.ByReference {
			*problems = append(*problems, fmt.Errorf("method %q: return type cannot be by-reference", name))
		}
		if err := validateParameter(m.ReturnType, true); err != nil {
			*problems = append(*problems, fmt.Errorf("method %q return type: %w", name, err))
		}
		for pi, p := range m.ParamTypes {
			if err := validateParameter(p, false); err != nil {
				*problems = append(*problems, fmt.Errorf("method %q param[%d]: %w", name, pi, err))
			}
			if p.Prototype != nil {
				protoProblems := []error{}
				dedupeMethods([]Method{*p.Prototype}, os, arch, &protoProblems, warn)
				for _, pp := range protoProblems {
					*problems = append(*problems, fmt.Errorf("method %q param[%d] prototype: %w", name, pi, pp))
				}
			}
		}
		if m.VarIndex != VarIndexNone && (m.VarIndex < 0 || m.VarIndex >= len(m.ParamTypes)) {
			*problems = append(*problems, fmt.Errorf("method %q varIndex %d out of range", name, m.VarIndex))
		}
		if !ValidCallingConvention(os, arch, m.CallingConvention) {
			*problems = append(*problems, fmt.Errorf("method %q calling convention %q not allowed on this platform", name, m.CallingConvention))
		}

		seen[name] = struct{}{}
		out = append(out, m)
	}
	return out
}

func validateParameter(p Parameter, isReturn bool) error {
	if p.Type == Void && !isReturn {
		return errors.New("parameter of type void is illegal")
	}
	if p.Type == Function && p.ByReference {
		return errors.New("function-typed parameter cannot be by-reference")
	}
	return nil
}

// PlatformFiltered reports whether a descriptor carrying a non-empty
// SupportedPlatforms set excludes the current platform tag.
func PlatformFiltered(supported []platform.Tag, current platform.Tag) bool {
	if len(supported) == 0 {
		return false
	}
	for _, tag := range supported {
		if tag == current {
			return false
		}
	}
	return true
}
