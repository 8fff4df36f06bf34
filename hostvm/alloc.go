package hostvm

import (
	"context"
	"fmt"

	"github.com/concretevm/liveobject/memslice"
)

// allocateAndWrite asks the guest to allocate len(data) bytes, writes
// data into the returned MemorySlice, and returns the descriptor
// address the guest gave back — the same address a caller would decode
// to get at the slice.
func (c *Context) allocateAndWrite(ctx context.Context, data []byte) (uint32, error) {
	results, err := c.allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("hostvm: guest allocate(%d): %w", len(data), err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("hostvm: guest allocate returned no value")
	}
	descriptorAddr := uint32(results[0])

	slice, err := memslice.Decode(c.memory, descriptorAddr)
	if err != nil {
		return 0, err
	}
	if err := memslice.Write(c.memory, slice, data); err != nil {
		return 0, err
	}
	return descriptorAddr, nil
}

// readSlice decodes and reads the MemorySlice at descriptorAddr.
func (c *Context) readSlice(descriptorAddr uint32) ([]byte, error) {
	slice, err := memslice.Decode(c.memory, descriptorAddr)
	if err != nil {
		return nil, err
	}
	return memslice.Read(c.memory, slice, memslice.MaxWasmMemorySize)
}
