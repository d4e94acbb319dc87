package pluginmanager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/plugify-go/plugify/internal/localindex"
)

// wasmRuntime is the embedded VM instance backing a "wasm"-typed language
// module. Unlike native modules, a wasm language module needs no on-disk
// interpreter library: wazero itself is the interpreter, so "activating"
// the module means standing up its runtime.
type wasmRuntime struct {
	ctx     context.Context
	cancel  context.CancelFunc
	runtime wazero.Runtime
}

type wasmPluginInstance struct {
	module api.Module
}

// activateWASMModule stands up an embedded wazero runtime with WASI
// instantiated. No plugin code runs here; only the shared VM is created.
func activateWASMModule(mod *Module) error {
	ctx, cancel := context.WithCancel(context.Background())
	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		cancel()
		runtime.Close(ctx)
		return fmt.Errorf("instantiate wasi: %w", err)
	}

	mod.wasm = &wasmRuntime{ctx: ctx, cancel: cancel, runtime: runtime}
	mod.EntryAddr = 0 // no native address: the runtime itself is the entry point
	return nil
}

// loadWASMPlugin compiles and instantiates pkg's declared EntryPoint as a
// wasm module inside mod's shared runtime. Per the package's Non-goal on
// executing plugin user code, no exported function is invoked — only the
// implicit module "start" section, if any, which is intrinsic to wasm
// instantiation itself, runs.
func loadWASMPlugin(mod *Module, pkg localindex.Package) (*wasmPluginInstance, error) {
	if mod.wasm == nil {
		return nil, fmt.Errorf("wasm language module %q has no runtime", mod.Package.Name)
	}

	path := filepath.Join(pkg.Dir, filepath.FromSlash(pkg.Descriptor.EntryPoint))
	bytecode, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wasm entry point %s: %w", path, err)
	}

	compiled, err := mod.wasm.runtime.CompileModule(mod.wasm.ctx, bytecode)
	if err != nil {
		return nil, fmt.Errorf("compile wasm module %s: %w", path, err)
	}
	defer compiled.Close(mod.wasm.ctx)

	config := wazero.NewModuleConfig().WithName(pkg.Name).WithStdout(os.Stdout).WithStderr(os.Stderr)
	instance, err := mod.wasm.runtime.InstantiateModule(mod.wasm.ctx, compiled, config)
	if err != nil {
		return nil, fmt.Errorf("instantiate wasm module %s: %w", path, err)
	}

	return &wasmPluginInstance{module: instance}, nil
}

func closeWASMPlugin(inst *wasmPluginInstance) {
	if inst == nil || inst.module == nil {
		return
	}
	_ = inst.module.Close(context.Background())
}

func closeWASMRuntime(rt *wasmRuntime) {
	if rt == nil {
		return
	}
	rt.cancel()
	if rt.runtime != nil {
		_ = rt.runtime.Close(context.Background())
	}
}
