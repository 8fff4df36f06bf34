package hostvm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// moduleName is the WASM import namespace guest modules call into.
const moduleName = "env"

// Import function names, as seen by the guest.
const (
	funcStorageHas    = "storage_has"
	funcStorageRead   = "storage_read"
	funcStorageWrite  = "storage_write"
	funcStorageDelete = "storage_delete"
)

// buildImports registers the env.storage_* host functions, bound to c,
// on runtime. Each import panics with the offending error on failure;
// wazero recovers a host function panic and turns it into a trap that
// aborts the current export call, carrying the error's Error() text —
// this is how spec errors reach the guest verbatim.
func buildImports(ctx context.Context, runtime wazero.Runtime, c *Context) error {
	_, err := runtime.NewHostModuleBuilder(moduleName).
		NewFunctionBuilder().WithFunc(c.storageHas).Export(funcStorageHas).
		NewFunctionBuilder().WithFunc(c.storageRead).Export(funcStorageRead).
		NewFunctionBuilder().WithFunc(c.storageWrite).Export(funcStorageWrite).
		NewFunctionBuilder().WithFunc(c.storageDelete).Export(funcStorageDelete).
		Instantiate(ctx)
	return err
}

// storageHas implements env.storage_has(key_ptr) -> i32.
func (c *Context) storageHas(_ context.Context, _ api.Module, keyPtr uint32) int32 {
	key, err := c.readSlice(keyPtr)
	if err != nil {
		panic(fmt.Errorf("storage_has: %w", err))
	}
	ok, err := c.Storage.Has(c.PrefixKey(key))
	if err != nil {
		panic(fmt.Errorf("storage_has: %w", err))
	}
	if ok {
		return 1
	}
	return 0
}

// storageRead implements env.storage_read(key_ptr) -> i32, a descriptor
// address pointing at the value in freshly allocated guest memory.
func (c *Context) storageRead(ctx context.Context, _ api.Module, keyPtr uint32) uint32 {
	key, err := c.readSlice(keyPtr)
	if err != nil {
		panic(fmt.Errorf("storage_read: %w", err))
	}
	value, err := c.Storage.Get(c.PrefixKey(key))
	if err != nil {
		panic(fmt.Errorf("storage_read: %w", err))
	}
	resultPtr, err := c.allocateAndWrite(ctx, value)
	if err != nil {
		panic(fmt.Errorf("storage_read: %w", err))
	}
	return resultPtr
}

// storageWrite implements env.storage_write(key_ptr, value_ptr) -> ().
func (c *Context) storageWrite(_ context.Context, _ api.Module, keyPtr, valuePtr uint32) {
	key, err := c.readSlice(keyPtr)
	if err != nil {
		panic(fmt.Errorf("storage_write: %w", err))
	}
	value, err := c.readSlice(valuePtr)
	if err != nil {
		panic(fmt.Errorf("storage_write: %w", err))
	}
	if err := c.Storage.Set(c.PrefixKey(key), value); err != nil {
		panic(fmt.Errorf("storage_write: %w", err))
	}
}

// storageDelete implements env.storage_delete(key_ptr) -> ().
func (c *Context) storageDelete(_ context.Context, _ api.Module, keyPtr uint32) {
	key, err := c.readSlice(keyPtr)
	if err != nil {
		panic(fmt.Errorf("storage_delete: %w", err))
	}
	if err := c.Storage.Delete(c.PrefixKey(key)); err != nil {
		panic(fmt.Errorf("storage_delete: %w", err))
	}
}
