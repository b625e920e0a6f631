package cache

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Settled reports whether the status carries a resolved outcome.
func (s Status) Settled() bool {
	return s == StatusSuccess || s == StatusError
}

// Entry is the last known state of one signature.
//
// Invariants, enforced by Normalize:
//   - StatusSuccess has Data and no Err
//   - StatusError has Err, Data is the last known good payload or nil
//
// SubscriberCount and Generation are owned by the store and filled in on
// every read; values written by callers are ignored.
type Entry struct {
	Status    Status
	Data      json.RawMessage
	Err       *ErrorInfo
	UpdatedAt time.Time
	// Hydrated marks entries seeded from a dehydrated snapshot.
	Hydrated bool

	SubscriberCount int
	Generation      uint64
}

// Success builds a success entry.
func Success(data json.RawMessage) Entry {
	return Entry{Status: StatusSuccess, Data: data}
}

// Failure builds an error entry keeping lastGood as its data.
func Failure(info *ErrorInfo, lastGood json.RawMessage) Entry {
	return Entry{Status: StatusError, Err: info, Data: lastGood}
}

// Loading builds the in-flight successor of prev, keeping its data visible.
func Loading(prev Entry) Entry {
	return Entry{Status: StatusLoading, Data: prev.Data, UpdatedAt: prev.UpdatedAt}
}

// Normalize returns e with the status invariants applied.
func (e Entry) Normalize() Entry {
	switch e.Status {
	case StatusSuccess:
		e.Err = nil
		if e.Data == nil {
			e.Data = json.RawMessage("null")
		}
	case StatusError:
		if e.Err == nil {
			e.Err = &ErrorInfo{Code: CodeUnknown, Message: GenericFailureMessage}
		}
	case StatusLoading, StatusIdle:
		e.Err = nil
	default:
		e.Status = StatusIdle
		e.Err = nil
	}
	return e
}

// Snapshot strips store-owned fields for transport.
func (e Entry) Snapshot() EntrySnapshot {
	return EntrySnapshot{
		Status:    e.Status,
		Data:      e.Data,
		Error:     e.Err,
		UpdatedAt: e.UpdatedAt,
	}
}

// EntrySnapshot is the serializable part of an Entry.
type EntrySnapshot struct {
	Status    Status          `json:"status" msgpack:"status"`
	Data      json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty" msgpack:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt" msgpack:"updatedAt"`
}

// Entry converts the snapshot back into an entry marked as hydrated.
func (s EntrySnapshot) Entry() Entry {
	return Entry{
		Status:    s.Status,
		Data:      s.Data,
		Err:       s.Error,
		UpdatedAt: s.UpdatedAt,
		Hydrated:  true,
	}.Normalize()
}
