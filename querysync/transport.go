package querysync

import (
	"context"
	"encoding/json"
)

// Transport is the remote procedure boundary. Read must be idempotent and
// free of side effects; Write is only called by mutations.
type Transport interface {
	Read(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error)
	Write(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error)
}

// TransportFuncs adapts a pair of functions into a Transport.
type TransportFuncs struct {
	ReadFunc  func(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error)
	WriteFunc func(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error)
}

func (t TransportFuncs) Read(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	if t.ReadFunc == nil {
		return nil, ErrNoTransport
	}
	return t.ReadFunc(ctx, name, params)
}

func (t TransportFuncs) Write(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	if t.WriteFunc == nil {
		return nil, ErrNoTransport
	}
	return t.WriteFunc(ctx, name, payload)
}
