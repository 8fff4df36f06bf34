// Package action turns a Message into one of {Create, Execute} and
// performs it against an overlay cache handle.
package action

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/concretevm/liveobject/hostvm"
	"github.com/concretevm/liveobject/liveobject"
	"github.com/concretevm/liveobject/overlay"
	"github.com/concretevm/liveobject/storage"
)

// Action is anything a Message resolves to: performing it against cache
// returns the batch's string result, or an error that aborts the batch.
type Action interface {
	Perform(ctx context.Context, cache *overlay.Cache) (string, error)
}

// Create computes a liveobject.Info from wasm bytes and stores its
// canonical record. Content addressing means creating the same bytes
// twice is a harmless overwrite with identical content.
type Create struct {
	WasmBytes []byte
}

// Perform implements Action.
func (a Create) Perform(_ context.Context, cache *overlay.Cache) (string, error) {
	info := liveobject.New(a.WasmBytes)

	record, err := info.Marshal()
	if err != nil {
		return "", fmt.Errorf("action: marshal live object %s: %w", info.Id, err)
	}

	if err := cache.Set(info.IdBytes(), record); err != nil {
		log.Error("action: create failed", "liveObject", info.Id, "err", err)
		return "", err
	}

	log.Info("action: created live object", "liveObject", info.Id)
	return info.Id, nil
}

// Execute loads a live object and invokes one of its exported methods.
type Execute struct {
	LiveObjectId string
	Method       string
	Args         []byte
}

// Perform implements Action.
func (a Execute) Perform(ctx context.Context, cache *overlay.Cache) (string, error) {
	record, err := cache.Get([]byte(a.LiveObjectId))
	if err != nil {
		if err == storage.ErrNotFound {
			return "", fmt.Errorf("%w: %s", hostvm.ErrUnknownLiveObj, a.LiveObjectId)
		}
		return "", fmt.Errorf("action: load live object %s: %w", a.LiveObjectId, err)
	}

	info, err := liveobject.Unmarshal(record)
	if err != nil {
		return "", fmt.Errorf("action: decode live object %s: %w", a.LiveObjectId, err)
	}

	runtime, err := hostvm.New(ctx, cache, info)
	if err != nil {
		return "", fmt.Errorf("action: create runtime for %s: %w", a.LiveObjectId, err)
	}
	defer runtime.Close(ctx)

	result, err := runtime.Run(ctx, a.Method, a.Args)
	if err != nil {
		log.Error("action: execute failed", "liveObject", a.LiveObjectId, "method", a.Method, "err", err)
		return "", err
	}

	log.Info("action: executed live object", "liveObject", a.LiveObjectId, "method", a.Method)
	return result, nil
}
