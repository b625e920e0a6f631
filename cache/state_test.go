package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func sampleState() DehydratedState {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	user := SignatureOf("getUserByUsername", map[string]any{"username": "ada"})
	return DehydratedState{Queries: []DehydratedQuery{
		{
			Name:   user.Name(),
			Params: user.Params(),
			State:  Success(json.RawMessage(`{"username":"ada"}`)).Normalize().Snapshot(),
		},
		{
			Name:   "getUserByUsername",
			Params: json.RawMessage(`{"username":"ghost"}`),
			State: EntrySnapshot{
				Status:    StatusError,
				Error:     &ErrorInfo{Code: CodeNotFound, Message: "user not found"},
				UpdatedAt: at,
			},
		},
	}}
}

func TestState_MsgpackPreservesSignatures(t *testing.T) {
	state := sampleState()

	data, err := MarshalState(state, FormatMsgpack)
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}
	decoded, err := UnmarshalState(data, FormatMsgpack)
	if err != nil {
		t.Fatalf("UnmarshalState: %v", err)
	}

	if len(decoded.Queries) != len(state.Queries) {
		t.Fatalf("got %d queries, want %d", len(decoded.Queries), len(state.Queries))
	}
	for i := range state.Queries {
		want := state.Queries[i].Signature(nil)
		got := decoded.Queries[i].Signature(nil)
		if want != got {
			t.Errorf("query %d: signature %q, want %q", i, got.Key(), want.Key())
		}
	}

	ghost := decoded.Queries[1].State
	if ghost.Error == nil || ghost.Error.Code != CodeNotFound {
		t.Errorf("error snapshot lost: %+v", ghost.Error)
	}
	if !ghost.UpdatedAt.Equal(state.Queries[1].State.UpdatedAt) {
		t.Errorf("UpdatedAt = %v", ghost.UpdatedAt)
	}
}

func TestState_JSONEmpty(t *testing.T) {
	data, err := MarshalState(DehydratedState{}, FormatJSON)
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}
	if string(data) != `{"queries":[]}` {
		t.Errorf("got %s", data)
	}

	state, err := UnmarshalState(nil, FormatJSON)
	if err != nil || !state.IsEmpty() {
		t.Errorf("empty payload should decode to empty state, got %+v, %v", state, err)
	}
}

func TestState_UnsupportedFormat(t *testing.T) {
	if _, err := MarshalState(DehydratedState{}, "text/plain"); err == nil {
		t.Error("expected an error for unsupported format")
	}
}

func TestSnapshotEntry_MarksHydrated(t *testing.T) {
	e := sampleState().Queries[0].State.Entry()
	if !e.Hydrated {
		t.Error("entries restored from a snapshot are hydrated")
	}
	if e.Status != StatusSuccess {
		t.Errorf("Status = %v", e.Status)
	}
}
