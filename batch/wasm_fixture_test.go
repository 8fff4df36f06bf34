package batch

// Minimal hand-assembled echo module, built the same way as
// hostvm's own test fixture: a WASM MVP module with no imports,
// exporting memory, allocate, deallocate, and an echo method that
// returns its argument descriptor unchanged.

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb128(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

func wasmSection(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb128(uint32(len(content)))...)
	return append(out, content...)
}

func funcType(paramCount, resultCount int) []byte {
	const i32 = 0x7f
	out := []byte{0x60, byte(paramCount)}
	for i := 0; i < paramCount; i++ {
		out = append(out, i32)
	}
	out = append(out, byte(resultCount))
	for i := 0; i < resultCount; i++ {
		out = append(out, i32)
	}
	return out
}

func wasmExport(name string, kind byte, idx uint32) []byte {
	out := []byte{byte(len(name))}
	out = append(out, []byte(name)...)
	out = append(out, kind)
	return append(out, uleb128(idx)...)
}

func codeEntry(body []byte) []byte {
	full := append([]byte{0x00}, body...)
	return append(uleb128(uint32(len(full))), full...)
}

func i32Const(v int32) []byte     { return append([]byte{0x41}, sleb128(v)...) }
func localGet(idx uint32) []byte  { return append([]byte{0x20}, uleb128(idx)...) }

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// buildEchoModule returns a module exporting memory, allocate,
// deallocate, and echo. allocate always hands back the descriptor at
// address 8, pointing at the scratch region starting at address 100;
// echo returns its argument descriptor unchanged.
func buildEchoModule() []byte {
	buf := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	i32Store := []byte{0x36, 0x02, 0x00}
	end := []byte{0x0b}

	types := concatBytes([]byte{0x02}, funcType(1, 1), funcType(1, 0))
	buf = append(buf, wasmSection(0x01, types)...)

	funcs := []byte{0x03, 0x00, 0x01, 0x00}
	buf = append(buf, wasmSection(0x03, funcs)...)

	mem := []byte{0x01, 0x00, 0x01}
	buf = append(buf, wasmSection(0x05, mem)...)

	exports := concatBytes([]byte{0x04},
		wasmExport("memory", 0x02, 0),
		wasmExport("allocate", 0x00, 0),
		wasmExport("deallocate", 0x00, 1),
		wasmExport("echo", 0x00, 2),
	)
	buf = append(buf, wasmSection(0x07, exports)...)

	allocateBody := concatBytes(
		i32Const(8), i32Const(100), i32Store,
		i32Const(12), localGet(0), i32Store,
		i32Const(8), end,
	)
	deallocateBody := end
	echoBody := concatBytes(localGet(0), end)

	code := concatBytes([]byte{0x03},
		codeEntry(allocateBody),
		codeEntry(deallocateBody),
		codeEntry(echoBody),
	)
	buf = append(buf, wasmSection(0x0a, code)...)

	return buf
}
