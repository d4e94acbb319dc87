// Package pluginmanager loads discovered artifacts in dependency order,
// instantiates per-language runtimes, and exposes native-function lookup
// across the graph. It never calls into a plugin's own entry point:
// activation resolves and records the symbol/module a plugin would run
// through, it does not invoke it.
package pluginmanager

import (
	"fmt"
	"log"
	"strings"

	"github.com/plugify-go/plugify/internal/assembly"
	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/localindex"
)

// WASMLanguageTag is the reserved language-module type identifying a
// wasm-hosted runtime, activated via an embedded wazero instance instead
// of the Assembly Loader.
const WASMLanguageTag = "wasm"

// Module is a loaded (or failed) language module.
type Module struct {
	Package localindex.Package
	State   ModuleState
	Err     error
	Kind    ModuleKind

	assembly *assembly.Assembly
	wasm     *wasmRuntime

	// EntryAddr is the resolved address of the module's initialization
	// entry point, for native modules. It is recorded, never called.
	EntryAddr uintptr
}

// Plugin is a loaded (or failed) plugin, with a stable numeric ID assigned
// at load time in scan order.
type Plugin struct {
	ID      int
	Package localindex.Package
	State   PluginState
	Err     error

	moduleType string
	wasmPlugin *wasmPluginInstance
}

// Manager orchestrates language-module and plugin loading for a resolved
// local index.
type Manager struct {
	logger *log.Logger

	modules map[string]*Module // keyed by Type (language identifier)
	plugins []*Plugin
	byName  map[string]*Plugin
}

// New constructs an empty Manager. Call LoadAll to populate it from a
// local index.
func New(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		logger:  logger,
		modules: make(map[string]*Module),
		byName:  make(map[string]*Plugin),
	}
}

func (m *Manager) warn(format string, args ...interface{}) { m.logger.Printf(format, args...) }

// LoadAll partitions local into language modules and plugins, validates
// declared language modules exist, detects dependency cycles, computes a
// topological order, lazily loads language modules on first client use,
// and activates plugins in that order. Errors on individual plugins never
// abort the whole load; they isolate that plugin into PluginError.
func (m *Manager) LoadAll(local *localindex.Index) error {
	var modulePkgs []localindex.Package
	var pluginPkgs []localindex.Package
	for _, pkg := range local.All() {
		if pkg.IsPlugin() {
			pluginPkgs = append(pluginPkgs, pkg)
		} else {
			modulePkgs = append(modulePkgs, pkg)
		}
	}

	for _, pkg := range modulePkgs {
		m.modules[pkg.Type] = &Module{Package: pkg, Kind: moduleKind(pkg)}
	}

	for i, pkg := range pluginPkgs {
		p := &Plugin{ID: i + 1, Package: pkg, moduleType: pkg.Descriptor.LanguageModule.Name}
		m.plugins = append(m.plugins, p)
		m.byName[pkg.Name] = p
	}

	for _, p := range m.plugins {
		if _, ok := m.modules[p.moduleType]; !ok {
			p.State = PluginError
			p.Err = fmt.Errorf("declared language module %q does not exist locally", p.moduleType)
			m.warn("pluginmanager: %q: %v", p.Package.Name, p.Err)
		}
	}

	cycles := detectCycles(m.plugins, m.byName)
	for _, p := range cycles {
		if p.State == PluginError {
			continue
		}
		p.State = PluginError
		p.Err = fmt.Errorf("plugin %q participates in a dependency cycle", p.Package.Name)
		m.warn("pluginmanager: %v", p.Err)
	}

	order := topologicalOrder(m.plugins, m.byName)

	for _, p := range order {
		if p.State == PluginError {
			continue
		}
		if err := m.activatePlugin(p); err != nil {
			p.State = PluginError
			p.Err = err
			m.warn("pluginmanager: %q: %v", p.Package.Name, err)
			continue
		}
		p.State = PluginLoaded
	}

	for _, p := range order {
		if p.State == PluginLoaded {
			p.State = PluginRunning
		}
	}

	return nil
}

func moduleKind(pkg localindex.Package) ModuleKind {
	if strings.EqualFold(pkg.Type, WASMLanguageTag) {
		return ModuleKindWASM
	}
	return ModuleKindNative
}

// ensureModuleLoaded lazily activates the language module named lang on
// first use by a client plugin.
func (m *Manager) ensureModuleLoaded(lang string) (*Module, error) {
	mod, ok := m.modules[lang]
	if !ok {
		return nil, fmt.Errorf("language module %q not found", lang)
	}
	if mod.State == ModuleLoaded {
		return mod, nil
	}
	if mod.State == ModuleError {
		return nil, mod.Err
	}

	var err error
	switch mod.Kind {
	case ModuleKindWASM:
		err = activateWASMModule(mod)
	default:
		err = activateNativeModule(mod)
	}
	if err != nil {
		mod.State = ModuleError
		mod.Err = err
		return nil, err
	}
	mod.State = ModuleLoaded
	return mod, nil
}

// activatePlugin ensures the plugin's language module is loaded and hands
// the plugin to it for activation.
func (m *Manager) activatePlugin(p *Plugin) error {
	mod, err := m.ensureModuleLoaded(p.moduleType)
	if err != nil {
		return fmt.Errorf("language module unavailable: %w", err)
	}

	switch mod.Kind {
	case ModuleKindWASM:
		inst, err := loadWASMPlugin(mod, p.Package)
		if err != nil {
			return err
		}
		p.wasmPlugin = inst
		return nil
	default:
		return activateNativePlugin(mod, p.Package)
	}
}

// Shutdown reverses the load order: Running -> Terminating -> Unloaded,
// then releases every loaded module's resources.
func (m *Manager) Shutdown() {
	order := topologicalOrder(m.plugins, m.byName)
	for i := len(order) - 1; i >= 0; i-- {
		p := order[i]
		if p.State != PluginRunning {
			continue
		}
		p.State = PluginTerminating
		if p.wasmPlugin != nil {
			closeWASMPlugin(p.wasmPlugin)
		}
		p.State = PluginUnloaded
	}
	for _, mod := range m.modules {
		if mod.State != ModuleLoaded {
			continue
		}
		if mod.assembly != nil {
			if err := mod.assembly.Close(); err != nil {
				m.warn("pluginmanager: closing module %q: %v", mod.Package.Name, err)
			}
		}
		if mod.wasm != nil {
			closeWASMRuntime(mod.wasm)
		}
	}
}

// All returns every loaded or failed plugin, in scan order.
func (m *Manager) All() []*Plugin { return append([]*Plugin(nil), m.plugins...) }

// Modules returns every loaded or failed language module.
func (m *Manager) Modules() []*Module {
	out := make([]*Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod)
	}
	return out
}

// ResolveMethod is the native-function lookup surface: it finds the
// plugin's declared descriptor.Method named methodName and resolves its
// FuncName to a symbol address in the owning module's Assembly. Only a
// native, loaded language module qualifies.
func (m *Manager) ResolveMethod(pluginName, methodName string) (uintptr, error) {
	p, ok := m.byName[pluginName]
	if !ok {
		return 0, fmt.Errorf("plugin %q not found", pluginName)
	}
	var method *descriptor.Method
	for i := range p.Package.Descriptor.ExportedMethods {
		if p.Package.Descriptor.ExportedMethods[i].Name == methodName {
			method = &p.Package.Descriptor.ExportedMethods[i]
			break
		}
	}
	if method == nil {
		return 0, fmt.Errorf("plugin %q has no exported method %q", pluginName, methodName)
	}

	mod, ok := m.modules[p.moduleType]
	if !ok || mod.State != ModuleLoaded || mod.Kind != ModuleKindNative || mod.assembly == nil {
		return 0, fmt.Errorf("plugin %q's language module is not a loaded native module", pluginName)
	}
	addr, found := mod.assembly.FindSymbol(method.FuncName)
	if !found {
		return 0, fmt.Errorf("symbol %q not exported by module %q", method.FuncName, p.moduleType)
	}
	return addr, nil
}
