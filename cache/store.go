package cache

import (
	"context"
	"encoding/json"
)

// Listener is invoked after every Set or Delete that touches one signature.
// present is false when the entry was removed.
type Listener func(entry Entry, present bool)

// UpdateFunc computes the next entry from the current one while the store
// holds the signature's lock. Returning write=false leaves the entry as is.
// current carries the store owned Generation even when exists is false.
type UpdateFunc func(current Entry, exists bool) (next Entry, write bool)

// Record pairs a signature with its entry.
type Record struct {
	Signature Signature
	Entry     Entry
}

// Store owns every cache entry of one process or tab. Mutations to a single
// signature are serialized and each one is applied atomically relative to the
// notification of that signature's subscribers. Nothing is promised across
// signatures.
type Store interface {
	// Get is a pure read.
	Get(sig Signature) (Entry, bool)
	// Set replaces the entry, bumps UpdatedAt and notifies subscribers.
	Set(sig Signature, entry Entry)
	// Delete removes the entry and advances the signature generation, so a
	// fetch started before the delete can recognise its result as stale.
	Delete(sig Signature)
	// Update runs fn under the signature lock and writes its result when asked to.
	// It returns the resulting entry and whether it is present.
	Update(sig Signature, fn UpdateFunc) (Entry, bool)
	// Subscribe registers listener for sig. The returned disposer is
	// idempotent and waits for a delivery in progress: once it returns the
	// listener is never invoked again. A listener must not call its own
	// disposer synchronously.
	Subscribe(sig Signature, listener Listener) (unsubscribe func())
	SubscriberCount(sig Signature) int
	// Signatures lists the signatures with a live entry under name.
	Signatures(name string) []Signature
	// Snapshot lists every live entry ordered by signature key.
	Snapshot() []Record
}

// FetchFn is the typed form of a read call.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Fetcher is the untyped read call: it resolves to an encoded payload.
type Fetcher func(ctx context.Context) (json.RawMessage, error)

// Encode adapts a typed read call into a Fetcher.
func Encode[T any](fn FetchFn[T]) Fetcher {
	return func(ctx context.Context) (json.RawMessage, error) {
		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

// Decode unmarshals a payload into T. A nil payload yields the zero value.
func Decode[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
