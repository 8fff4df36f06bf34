package hostvm

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/concretevm/liveobject/liveobject"
	"github.com/concretevm/liveobject/memslice"
	"github.com/concretevm/liveobject/overlay"
)

// Required guest exports.
const (
	exportMemory     = "memory"
	exportAllocate   = "allocate"
	exportDeallocate = "deallocate"
)

// wasmPageSize is the WASM linear memory page size in bytes, fixed by
// the spec. The runtime's memory limit is capped at the same bound
// memslice enforces on descriptors, so no guest can allocate memory it
// could never validly address.
const wasmPageSize = 65536

// Fatal module errors, matching the kinds spec §7 names.
var (
	ErrModuleCompile    = errors.New("hostvm: module compile failed")
	ErrInstantiate      = errors.New("hostvm: instantiate failed")
	ErrMissingExport    = errors.New("hostvm: missing required export")
	ErrNoReturn         = errors.New("hostvm: export returned no value")
	ErrResultNotUTF8    = errors.New("hostvm: result is not valid UTF-8")
	ErrUnknownLiveObj   = errors.New("hostvm: unknown live object")
	ErrDeallocateFailed = errors.New("hostvm: deallocate failed")
)

// Runtime is the per-invocation execution environment for one live
// object: a fresh Store and Module compiled and instantiated for a
// single Run call. Instances are never reused across messages.
type Runtime struct {
	runtime wazero.Runtime
	module  api.Module
	context *Context

	deallocate api.Function
}

// New compiles live object info's WASM bytes, wires a Context bound to
// storage and the live object's id, links the env.storage_* imports,
// and instantiates the module. The runtime must be closed (Close) once
// the caller is done with the one Run it will perform.
func New(ctx context.Context, store *overlay.Cache, info liveobject.Info) (*Runtime, error) {
	runtimeConfig := wazero.NewRuntimeConfigCompiler().
		WithMemoryCapacityFromMax(true).
		WithMemoryLimitPages(memslice.MaxWasmMemorySize / wasmPageSize)
	r := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	hostCtx := &Context{
		Storage:   store,
		KeyPrefix: info.IdBytes(),
	}
	if err := buildImports(ctx, r, hostCtx); err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrInstantiate, err)
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: wasi: %v", ErrInstantiate, err)
	}

	compiled, err := r.CompileModule(ctx, info.WasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrModuleCompile, err)
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(info.Id))
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrInstantiate, err)
	}

	memory := mod.Memory()
	if memory == nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: %q", ErrMissingExport, exportMemory)
	}

	allocate := mod.ExportedFunction(exportAllocate)
	if allocate == nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: %q", ErrMissingExport, exportAllocate)
	}

	deallocate := mod.ExportedFunction(exportDeallocate)
	if deallocate == nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: %q", ErrMissingExport, exportDeallocate)
	}

	hostCtx.wire(memory, allocate)

	log.Debug("hostvm: runtime created", "liveObject", info.Id)

	return &Runtime{
		runtime:    r,
		module:     mod,
		context:    hostCtx,
		deallocate: deallocate,
	}, nil
}

// Close releases the Store, Module, and Instance. A Runtime is scoped
// to one Run and must not be reused afterward.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Run marshals args into guest memory, calls the named export, reads
// back its result as a UTF-8 string, and asks the guest to deallocate
// the result before returning.
func (r *Runtime) Run(ctx context.Context, method string, args []byte) (string, error) {
	argsPtr, err := r.context.allocateAndWrite(ctx, args)
	if err != nil {
		return "", fmt.Errorf("hostvm: marshal args: %w", err)
	}

	fn := r.module.ExportedFunction(method)
	if fn == nil {
		return "", fmt.Errorf("%w: method %q", ErrMissingExport, method)
	}

	results, err := fn.Call(ctx, uint64(argsPtr))
	if err != nil {
		return "", fmt.Errorf("hostvm: call %q: %w", method, err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoReturn, method)
	}
	resultPtr := uint32(results[0])

	resultBytes, err := r.context.readSlice(resultPtr)
	if err != nil {
		return "", fmt.Errorf("hostvm: read result: %w", err)
	}
	if !utf8.Valid(resultBytes) {
		return "", ErrResultNotUTF8
	}
	result := string(resultBytes)

	if _, err := r.deallocate.Call(ctx, uint64(resultPtr)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeallocateFailed, err)
	}

	return result, nil
}
