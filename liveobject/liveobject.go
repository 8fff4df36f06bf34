// Package liveobject defines the content-addressed record for a stored
// WASM module: LiveObjectInfo.
package liveobject

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Info is the persisted record for one WASM module.
//
// Id = hex(Hash), with no 0x prefix; Hash = keccak256(WasmBytes). The
// record is immutable once created: Id and Hash are derived solely
// from WasmBytes.
type Info struct {
	Id        string      `json:"id"`
	Hash      common.Hash `json:"hash"`
	WasmBytes []byte      `json:"wasm_bytes"`
}

// idHex is the spec's id form for a content hash: lowercase hex, no 0x
// prefix, unlike common.Hash's own Hex(), which is 0x-prefixed.
func idHex(h common.Hash) string {
	return hex.EncodeToString(h[:])
}

// New computes a Info from raw WASM module bytes.
func New(wasmBytes []byte) Info {
	h := keccak256(wasmBytes)
	return Info{
		Id:        idHex(h),
		Hash:      h,
		WasmBytes: wasmBytes,
	}
}

// IdBytes returns the ASCII bytes of Id, the key this record is stored
// under and the key-prefix guest storage calls are namespaced by.
func (i Info) IdBytes() []byte {
	return []byte(i.Id)
}

// Marshal produces the canonical byte serialization of i.
func (i Info) Marshal() ([]byte, error) {
	return json.Marshal(i)
}

// Unmarshal decodes a Info previously produced by Marshal and verifies
// the id/hash invariant holds.
func Unmarshal(data []byte) (Info, error) {
	var i Info
	if err := json.Unmarshal(data, &i); err != nil {
		return Info{}, fmt.Errorf("liveobject: decode record: %w", err)
	}
	if want := idHex(i.Hash); i.Id != want {
		return Info{}, fmt.Errorf("liveobject: id %q does not match hash %q", i.Id, want)
	}
	return i, nil
}

type keccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

func newKeccakState() keccakState {
	return sha3.NewLegacyKeccak256().(keccakState)
}

func keccak256(data ...[]byte) (h common.Hash) {
	d := newKeccakState()
	for _, b := range data {
		d.Write(b)
	}
	d.Read(h[:])
	return h
}
