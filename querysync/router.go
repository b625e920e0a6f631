package querysync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind tells reads from writes.
type Kind string

const (
	KindQuery   Kind = "query"
	KindCommand Kind = "command"
)

// Procedure describes one registered query or command.
type Procedure struct {
	Name string
	Kind Kind
	Rule InvalidationRule
}

type handler func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error)

type procedure struct {
	Procedure
	call handler
}

// Router is an in-process registry of typed procedures. It decodes and
// validates params at the boundary and implements Transport, so a Client can
// call procedures directly or an HTTP handler can expose them.
type Router struct {
	mu         sync.RWMutex
	procedures map[string]procedure
}

var (
	_ Transport  = (*Router)(nil)
	_ RuleSource = (*Router)(nil)
)

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{procedures: make(map[string]procedure)}
}

// Query registers a read procedure. Params that implement
// validation.Validatable are validated before fn runs.
func Query[P, R any](r *Router, name string, fn func(ctx context.Context, params P) (R, error)) {
	r.add(procedure{
		Procedure: Procedure{Name: name, Kind: KindQuery},
		call:      typed(fn),
	})
}

// Command registers a write procedure along with the queries it invalidates.
func Command[P, R any](r *Router, name string, rule InvalidationRule, fn func(ctx context.Context, payload P) (R, error)) {
	r.add(procedure{
		Procedure: Procedure{Name: name, Kind: KindCommand, Rule: rule},
		call:      typed(fn),
	})
}

func (r *Router) add(p procedure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.procedures[p.Name]; exists {
		panic(fmt.Sprintf("querysync: procedure %q registered twice", p.Name))
	}
	r.procedures[p.Name] = p
}

func (r *Router) lookup(name string, kind Kind) (procedure, error) {
	r.mu.RLock()
	p, ok := r.procedures[name]
	r.mu.RUnlock()
	if !ok || p.Kind != kind {
		return procedure{}, goerrors.New(fmt.Sprintf("unknown %s %q", kind, name), goerrors.CategoryNotFound).
			WithTextCode("UNKNOWN_PROCEDURE")
	}
	return p, nil
}

// Read implements Transport.
func (r *Router) Read(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	p, err := r.lookup(name, KindQuery)
	if err != nil {
		return nil, err
	}
	return p.call(ctx, params)
}

// Write implements Transport.
func (r *Router) Write(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	p, err := r.lookup(name, KindCommand)
	if err != nil {
		return nil, err
	}
	return p.call(ctx, payload)
}

// RuleFor implements RuleSource.
func (r *Router) RuleFor(command string) InvalidationRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.procedures[command]; ok && p.Kind == KindCommand {
		return p.Rule
	}
	return nil
}

// Procedures lists the registered procedures ordered by name.
func (r *Router) Procedures() []Procedure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Procedure, 0, len(r.procedures))
	for _, p := range r.procedures {
		out = append(out, p.Procedure)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func typed[P, R any](fn func(ctx context.Context, params P) (R, error)) handler {
	return func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var params P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed params")
			}
		}

		if v, ok := any(&params).(validation.Validatable); ok {
			if err := v.Validate(); err != nil {
				return nil, goerrors.FromOzzoValidation(err, "invalid input")
			}
		} else if v, ok := any(params).(validation.Validatable); ok {
			if err := v.Validate(); err != nil {
				return nil, goerrors.FromOzzoValidation(err, "invalid input")
			}
		}

		out, err := fn(ctx, params)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}
}
