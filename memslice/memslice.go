// Package memslice decodes and bounds-checks the 8-byte {ptr,len}
// descriptors guest WASM modules use to hand byte buffers to the host.
package memslice

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxWasmMemorySize is the default ceiling used for slice bounds checks.
// 32-bit descriptors cap this at 4 GiB; this default is far more
// conservative.
const MaxWasmMemorySize = 16 * 1024 * 1024 // 16 MiB

// Sentinel error kinds. Host imports surface these to the guest as traps
// carrying their Error() text verbatim.
var (
	ErrNullPointer    = errors.New("memslice: null pointer")
	ErrExceedsMemory  = errors.New("memslice: descriptor exceeds linear memory")
	ErrExceedsSlice   = errors.New("memslice: payload exceeds slice capacity")
	ErrGuestReadFail  = errors.New("memslice: failed to read guest memory")
	ErrGuestWriteFail = errors.New("memslice: failed to write guest memory")
)

// descriptorSize is the wire size of a MemorySlice: two little-endian u32s.
const descriptorSize = 8

// Memory is the subset of wazero's api.Memory this package needs. It is
// implemented by *wazero's runtime memory view and by test doubles.
type Memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// Slice is a guest-side descriptor pair {ptr, len} laid out as 8
// little-endian bytes at some address in guest linear memory.
type Slice struct {
	Ptr uint32
	Len uint32
}

// Decode reads a Slice from 8 bytes at address p in the guest's linear
// memory and validates it.
func Decode(mem Memory, p uint32) (Slice, error) {
	raw, ok := mem.Read(p, descriptorSize)
	if !ok {
		return Slice{}, fmt.Errorf("%w: descriptor at %d", ErrGuestReadFail, p)
	}

	s := Slice{
		Ptr: binary.LittleEndian.Uint32(raw[0:4]),
		Len: binary.LittleEndian.Uint32(raw[4:8]),
	}

	if s.Ptr == 0 {
		return Slice{}, ErrNullPointer
	}
	if uint64(s.Ptr)+uint64(s.Len) > MaxWasmMemorySize {
		return Slice{}, fmt.Errorf("%w: ptr=%d len=%d", ErrExceedsMemory, s.Ptr, s.Len)
	}

	return s, nil
}

// Encode writes the 8-byte descriptor for s to address p in guest
// linear memory.
func Encode(mem Memory, p uint32, s Slice) error {
	var raw [descriptorSize]byte
	binary.LittleEndian.PutUint32(raw[0:4], s.Ptr)
	binary.LittleEndian.PutUint32(raw[4:8], s.Len)
	if !mem.Write(p, raw[:]) {
		return fmt.Errorf("%w: descriptor at %d", ErrGuestWriteFail, p)
	}
	return nil
}

// Read copies the maxLen-bounded payload described by s out of guest
// memory.
func Read(mem Memory, s Slice, maxLen uint32) ([]byte, error) {
	if s.Len > maxLen {
		return nil, fmt.Errorf("%w: len=%d max=%d", ErrExceedsSlice, s.Len, maxLen)
	}
	data, ok := mem.Read(s.Ptr, s.Len)
	if !ok {
		return nil, fmt.Errorf("%w: ptr=%d len=%d", ErrGuestReadFail, s.Ptr, s.Len)
	}
	// mem.Read aliases the guest's backing array; copy it out so the
	// result survives past the guest call that produced it.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write copies data into the slice s in guest memory. It fails if data
// does not fit in s.
func Write(mem Memory, s Slice, data []byte) error {
	if uint32(len(data)) > s.Len {
		return fmt.Errorf("%w: data=%d slice=%d", ErrExceedsSlice, len(data), s.Len)
	}
	if !mem.Write(s.Ptr, data) {
		return fmt.Errorf("%w: ptr=%d len=%d", ErrGuestWriteFail, s.Ptr, len(data))
	}
	return nil
}
