package modules

import (
	"context"
	"strconv"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/runtime"
)

// WasmConfig configures the wazero runtime behind a wasm module.
type WasmConfig struct {
	// MemoryLimitPages caps linear memory in 64KiB pages; 0 keeps the
	// wazero default.
	MemoryLimitPages uint32

	// CloseOnContextDone aborts running calls when the call context (the
	// runtime context for sync calls) is done.
	CloseOnContextDone bool
}

// DefaultWasmConfig returns the default configuration.
func DefaultWasmConfig() *WasmConfig {
	return &WasmConfig{
		MemoryLimitPages:   256,
		CloseOnContextDone: true,
	}
}

// WasmModule is a native module implemented by a WebAssembly binary. Every
// exported function with numeric parameters and results becomes a sync
// module function.
type WasmModule struct {
	def     *Definition
	runtime wazero.Runtime
	module  api.Module

	// An instance is not safe for concurrent calls; a module installed in
	// several runtimes serializes them.
	mu sync.Mutex
}

// Wasm compiles and instantiates binary with the default configuration.
func Wasm(ctx context.Context, name string, binary []byte) (*WasmModule, error) {
	return WasmWithConfig(ctx, name, binary, DefaultWasmConfig())
}

// WasmWithConfig compiles and instantiates binary.
func WasmWithConfig(ctx context.Context, name string, binary []byte, cfg *WasmConfig) (*WasmModule, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "module name cannot be empty")
	}
	if cfg == nil {
		cfg = DefaultWasmConfig()
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(cfg.CloseOnContextDone)
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	wr := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := wr.CompileModule(ctx, binary)
	if err != nil {
		_ = wr.Close(ctx)
		return nil, errors.Load("compile wasm module", err)
	}
	mod, err := wr.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = wr.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	w := &WasmModule{def: Define(name), runtime: wr, module: mod}
	for export, fd := range compiled.ExportedFunctions() {
		if !numeric(fd.ParamTypes()) || !numeric(fd.ResultTypes()) {
			Logger().Debug("skipping wasm export with reference types",
				zap.String("module", name),
				zap.String("function", export))
			continue
		}
		w.def.Function(export, w.export(export, fd))
	}
	return w, nil
}

// Definition returns the module definition for Registry.Register.
func (w *WasmModule) Definition() *Definition { return w.def }

// Close releases the wazero runtime. Later calls from script fail.
func (w *WasmModule) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}

func (w *WasmModule) export(name string, fd api.FunctionDefinition) runtime.SyncFunc {
	params, results := fd.ParamTypes(), fd.ResultTypes()
	fn := w.module.ExportedFunction(name)

	return func(c *runtime.Call) (any, error) {
		if c.Len() < len(params) {
			return nil, errors.New(errors.PhaseModule, errors.KindInvalidInput).
				Path(w.def.Name, name).
				Detail("expected %d arguments, got %d", len(params), c.Len()).
				Build()
		}
		stack := make([]uint64, len(params))
		for i, t := range params {
			arg := c.Arg(i)
			if !arg.IsNumber() {
				return nil, errors.TypeMismatch(errors.PhaseModule,
					[]string{w.def.Name, name, "arg" + strconv.Itoa(i)},
					api.ValueTypeName(t), arg.Kind().String())
			}
			stack[i] = encode(t, arg.AsFloat())
		}

		w.mu.Lock()
		out, err := fn.Call(c.Context(), stack...)
		w.mu.Unlock()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseModule, errors.KindNativeThrow, err, "wasm call "+name)
		}

		switch len(results) {
		case 0:
			return nil, nil
		case 1:
			return decode(results[0], out[0]), nil
		}
		values := make([]any, len(results))
		for i, t := range results {
			values[i] = decode(t, out[i])
		}
		return values, nil
	}
}

func numeric(types []api.ValueType) bool {
	for _, t := range types {
		switch t {
		case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
		default:
			return false
		}
	}
	return true
}

func encode(t api.ValueType, v float64) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(int64(v)))
	case api.ValueTypeI64:
		return api.EncodeI64(int64(v))
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v))
	}
	return api.EncodeF64(v)
}

func decode(t api.ValueType, v uint64) any {
	switch t {
	case api.ValueTypeI32:
		return api.DecodeI32(v)
	case api.ValueTypeI64:
		return int64(v)
	case api.ValueTypeF32:
		return api.DecodeF32(v)
	}
	return api.DecodeF64(v)
}
