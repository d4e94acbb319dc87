package pluginmanager

// PluginState is the plugin lifecycle state machine: NotLoaded -> Loaded ->
// Running -> Terminating -> Unloaded, with Error reachable (and terminal)
// from any state. Errors on one plugin never transition other plugins —
// they are isolated.
type PluginState int

const (
	PluginNotLoaded PluginState = iota
	PluginLoaded
	PluginRunning
	PluginTerminating
	PluginUnloaded
	PluginError
)

func (s PluginState) String() string {
	switch s {
	case PluginLoaded:
		return "loaded"
	case PluginRunning:
		return "running"
	case PluginTerminating:
		return "terminating"
	case PluginUnloaded:
		return "unloaded"
	case PluginError:
		return "error"
	default:
		return "not-loaded"
	}
}

// ModuleState tracks a language module's own lifecycle: modules are loaded
// lazily, on first use by a client plugin.
type ModuleState int

const (
	ModuleNotLoaded ModuleState = iota
	ModuleLoaded
	ModuleError
)

func (s ModuleState) String() string {
	switch s {
	case ModuleLoaded:
		return "loaded"
	case ModuleError:
		return "error"
	default:
		return "not-loaded"
	}
}

// ModuleKind discriminates how a language module is activated.
type ModuleKind int

const (
	// ModuleKindNative modules are opened through the Assembly Loader.
	ModuleKindNative ModuleKind = iota
	// ModuleKindWASM modules ("type":"wasm") are compiled and instantiated
	// in an embedded wazero runtime instead.
	ModuleKindWASM
)
