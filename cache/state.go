package cache

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// DehydratedState is the serializable slice of a store produced by one server
// render and consumed once by client hydration.
type DehydratedState struct {
	Queries []DehydratedQuery `json:"queries" msgpack:"queries"`
}

// DehydratedQuery is one signature and its entry snapshot.
type DehydratedQuery struct {
	Name   string          `json:"name" msgpack:"name"`
	Params json.RawMessage `json:"params,omitempty" msgpack:"params,omitempty"`
	State  EntrySnapshot   `json:"state" msgpack:"state"`
}

// Signature recomputes the query signature with codec.
func (q DehydratedQuery) Signature(codec Codec) Signature {
	if codec == nil {
		codec = defaultCodec
	}
	if len(q.Params) == 0 {
		return codec.SignatureOf(q.Name, nil)
	}
	return codec.SignatureOf(q.Name, q.Params)
}

// IsEmpty reports whether the state carries no queries.
func (s DehydratedState) IsEmpty() bool { return len(s.Queries) == 0 }

// Format names a DehydratedState wire encoding by its media type.
type Format string

const (
	FormatJSON    Format = "application/json"
	FormatMsgpack Format = "application/msgpack"
)

// MarshalState encodes state in format.
func MarshalState(state DehydratedState, format Format) ([]byte, error) {
	if state.Queries == nil {
		state.Queries = []DehydratedQuery{}
	}
	switch format {
	case FormatJSON, "":
		return json.Marshal(state)
	case FormatMsgpack:
		return msgpack.Marshal(state)
	default:
		return nil, fmt.Errorf("cache: unsupported state format %q", format)
	}
}

// UnmarshalState decodes state from format.
func UnmarshalState(data []byte, format Format) (DehydratedState, error) {
	var state DehydratedState
	if len(data) == 0 {
		return state, nil
	}
	var err error
	switch format {
	case FormatJSON, "":
		err = json.Unmarshal(data, &state)
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &state)
	default:
		err = fmt.Errorf("cache: unsupported state format %q", format)
	}
	if err != nil {
		return DehydratedState{}, err
	}
	return state, nil
}
