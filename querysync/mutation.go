package querysync

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/goliatone/go-querysync/cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MutationResult is the outcome of a write. Exactly one of Data and Err is
// meaningful: Err is nil on success.
type MutationResult struct {
	Data        json.RawMessage
	Err         *cache.ErrorInfo
	Invalidated []cache.Signature
}

// OK reports whether the write succeeded.
func (r MutationResult) OK() bool { return r.Err == nil }

// Mutate runs command through the transport and, once the write is
// acknowledged, invalidates every query named by rule. A failed write
// invalidates nothing and returns the classified error.
func (c *Client) Mutate(ctx context.Context, command string, payload any, rule InvalidationRule) MutationResult {
	ctx, span := c.tracer.Start(ctx, "querysync.mutate", trace.WithAttributes(
		attribute.String("command.name", command),
	))
	defer span.End()

	data, err := c.write(ctx, command, payload)
	if err != nil {
		info := cache.Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, info.Message)
		c.logger.Error().
			Err(err).
			Str("command", command).
			Str("code", string(info.Code)).
			Msg("mutation failed")
		return MutationResult{Err: info}
	}

	invalidated := c.Invalidate(ctx, rule...)
	span.SetAttributes(attribute.Int("invalidated.count", len(invalidated)))
	return MutationResult{Data: data, Invalidated: invalidated}
}

// Execute is Mutate with the rule declared for command by the client rules.
func (c *Client) Execute(ctx context.Context, command string, payload any) MutationResult {
	var rule InvalidationRule
	if c.rules != nil {
		rule = c.rules.RuleFor(command)
	}
	return c.Mutate(ctx, command, payload, rule)
}

func (c *Client) write(ctx context.Context, command string, payload any) (json.RawMessage, error) {
	if c.transport == nil {
		return nil, ErrNoTransport
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.transport.Write(ctx, command, raw)
}

// MutateOptions are callbacks run after a Mutation settles.
type MutateOptions struct {
	OnSuccess func(data json.RawMessage)
	OnError   func(info *cache.ErrorInfo)
}

// Mutation is a reusable handle over one command, for views that show a
// pending state while the write is in flight.
type Mutation struct {
	client  *Client
	command string
	opts    MutateOptions
	pending atomic.Int32
}

// Mutation creates a handle for command. The rule comes from the client rules.
func (c *Client) Mutation(command string, opts MutateOptions) *Mutation {
	return &Mutation{client: c, command: command, opts: opts}
}

// Mutate runs the command and the matching callback.
func (m *Mutation) Mutate(ctx context.Context, payload any) MutationResult {
	m.pending.Add(1)
	res := m.client.Execute(ctx, m.command, payload)
	m.pending.Add(-1)

	if res.OK() {
		if m.opts.OnSuccess != nil {
			m.opts.OnSuccess(res.Data)
		}
	} else if m.opts.OnError != nil {
		m.opts.OnError(res.Err)
	}
	return res
}

// IsPending reports whether a call is in flight.
func (m *Mutation) IsPending() bool {
	return m.pending.Load() > 0
}
