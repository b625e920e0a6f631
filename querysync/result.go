package querysync

import (
	"encoding/json"
	"time"

	"github.com/goliatone/go-querysync/cache"
)

// Result is what a view renders for one query.
type Result struct {
	Status    cache.Status
	Data      json.RawMessage
	Err       *cache.ErrorInfo
	UpdatedAt time.Time
}

func resultOf(e cache.Entry) Result {
	return Result{
		Status:    e.Status,
		Data:      e.Data,
		Err:       e.Err,
		UpdatedAt: e.UpdatedAt,
	}
}

func (r Result) IsLoading() bool { return r.Status == cache.StatusLoading || r.Status == cache.StatusIdle }
func (r Result) IsSuccess() bool { return r.Status == cache.StatusSuccess }
func (r Result) IsError() bool   { return r.Status == cache.StatusError }

// IsNotFound reports whether the read target does not exist.
func (r Result) IsNotFound() bool {
	return r.IsError() && r.Err != nil && r.Err.Code == cache.CodeNotFound
}

// Decode unmarshals the result data into T. Error results return their
// ErrorInfo; results with no data yet return the zero value.
func Decode[T any](r Result) (T, error) {
	if r.IsError() && len(r.Data) == 0 {
		var zero T
		return zero, r.Err
	}
	return cache.Decode[T](r.Data)
}
