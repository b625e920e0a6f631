package querysync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-querysync/cache"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const instrumentationName = "github.com/goliatone/go-querysync/querysync"

var (
	// ErrAlreadyHydrated is returned by a second Hydrate call on the same client.
	ErrAlreadyHydrated = goerrors.New("querysync: client already hydrated", goerrors.CategoryConflict).WithTextCode("ALREADY_HYDRATED")

	// ErrHydrateAfterRead is returned when Hydrate runs after a view already read.
	ErrHydrateAfterRead = goerrors.New("querysync: hydrate must run before the first read", goerrors.CategoryOperation).WithTextCode("HYDRATE_AFTER_READ")

	// ErrNoTransport is stored for queries that have no fetcher and no transport.
	ErrNoTransport = goerrors.New("querysync: no transport configured", goerrors.CategoryInternal).WithTextCode("NO_TRANSPORT")
)

// Client is the read, hydration and invalidation protocol over one cache
// store. A server creates one per render; a client process or tab keeps one
// for its lifetime.
type Client struct {
	store     cache.Store
	codec     cache.Codec
	transport Transport
	rules     RuleSource
	logger    zerolog.Logger
	tracer    trace.Tracer

	flights  singleflight.Group
	fetchers *xsync.MapOf[string, cache.Fetcher]

	hydrateMu sync.Mutex
	hydrated  bool
	read      atomic.Bool
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport sets the read/write boundary used by Query and Execute.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
		if rs, ok := t.(RuleSource); ok && c.rules == nil {
			c.rules = rs
		}
	}
}

// WithRules sets the invalidation rules Execute applies per command.
func WithRules(rules RuleSource) Option {
	return func(c *Client) {
		if rules != nil {
			c.rules = rules
		}
	}
}

// WithLogger sets the client logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracer overrides the tracer. The default is the global provider's.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithCodec overrides the signature codec.
func WithCodec(codec cache.Codec) Option {
	return func(c *Client) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// New creates a client over store.
func New(store cache.Store, opts ...Option) *Client {
	c := &Client{
		store:    store,
		codec:    cache.NewCanonicalCodec(),
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer(instrumentationName),
		fetchers: xsync.NewMapOf[string, cache.Fetcher](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying cache store.
func (c *Client) Store() cache.Store {
	return c.store
}

// Signature derives the signature of a query with the client codec.
func (c *Client) Signature(name string, params any) cache.Signature {
	return c.codec.SignatureOf(name, params)
}

// Query returns the signature of name(params) and a fetcher that reads it
// through the client transport.
func (c *Client) Query(name string, params any) (cache.Signature, cache.Fetcher) {
	sig := c.Signature(name, params)
	return sig, c.transportFetcher(sig)
}

func (c *Client) transportFetcher(sig cache.Signature) cache.Fetcher {
	return func(ctx context.Context) (json.RawMessage, error) {
		if c.transport == nil {
			return nil, ErrNoTransport
		}
		return c.transport.Read(ctx, sig.Name(), sig.Params())
	}
}

// Peek returns the cached state of sig without mounting or fetching.
func (c *Client) Peek(sig cache.Signature) Result {
	entry, ok := c.store.Get(sig)
	if !ok {
		return Result{Status: cache.StatusIdle}
	}
	return resultOf(entry)
}

// UseResult is the read operation for views. A cached success or error is
// returned as is with no fetch. Otherwise the entry is marked loading and a
// single fetch is started in the background; callers that arrive while it is
// in flight share it. UseResult never blocks on the fetch: state changes are
// delivered to subscribers of sig.
func (c *Client) UseResult(ctx context.Context, sig cache.Signature, fetch cache.Fetcher) Result {
	c.read.Store(true)
	fetch = c.register(sig, fetch)

	entry, started := c.mount(sig, false)
	if started {
		c.start(ctx, sig, entry.Generation, fetch)
	}
	return resultOf(entry)
}

// Fetch is UseResult for callers that need the settled outcome: it waits for
// the in-flight fetch of sig, if any, or until ctx is done.
func (c *Client) Fetch(ctx context.Context, sig cache.Signature, fetch cache.Fetcher) Result {
	return c.await(ctx, sig, c.register(sig, fetch), false)
}

// Prefetch runs the read ahead of rendering and stores its outcome. A failed
// read is stored as an error entry and never aborts the caller; the client
// that hydrates it refetches on mount.
func (c *Client) Prefetch(ctx context.Context, sig cache.Signature, fetch cache.Fetcher) {
	res := c.await(ctx, sig, c.register(sig, fetch), false)
	if res.Err != nil {
		c.logger.Warn().
			Str("query", sig.Name()).
			Str("key", sig.Key()).
			Str("code", string(res.Err.Code)).
			Msg("prefetch failed")
	}
}

// Refetch forces a new fetch of sig even when a settled entry is cached, and
// waits for it. A fetch already in flight is joined instead.
func (c *Client) Refetch(ctx context.Context, sig cache.Signature, fetch cache.Fetcher) Result {
	return c.await(ctx, sig, c.register(sig, fetch), true)
}

func (c *Client) await(ctx context.Context, sig cache.Signature, fetch cache.Fetcher, force bool) Result {
	c.read.Store(true)
	entry, _ := c.mount(sig, force)
	if entry.Status != cache.StatusLoading {
		return resultOf(entry)
	}

	select {
	case res := <-c.start(ctx, sig, entry.Generation, fetch):
		if res.Val != nil {
			return resultOf(res.Val.(cache.Entry))
		}
		return c.Peek(sig)
	case <-ctx.Done():
		return c.Peek(sig)
	}
}

// register keeps the latest fetcher of sig so invalidation can refetch it.
// A nil fetch resolves to the registered one, then to the transport.
func (c *Client) register(sig cache.Signature, fetch cache.Fetcher) cache.Fetcher {
	if fetch == nil {
		if known, ok := c.fetchers.Load(sig.Key()); ok {
			return known
		}
		return c.transportFetcher(sig)
	}
	c.fetchers.Store(sig.Key(), fetch)
	return fetch
}

// mount decides, atomically per signature, whether a fetch must start. It
// returns the resulting entry and true when this call moved it to loading.
func (c *Client) mount(sig cache.Signature, force bool) (cache.Entry, bool) {
	started := false
	entry, _ := c.store.Update(sig, func(cur cache.Entry, ok bool) (cache.Entry, bool) {
		if ok && cur.Status == cache.StatusLoading {
			return cur, false
		}
		if ok && !force && !needsFetch(cur) {
			return cur, false
		}
		started = true
		return cache.Loading(cur), true
	})

	if started {
		c.logger.Debug().Str("query", sig.Name()).Str("key", sig.Key()).Msg("fetch started")
	} else {
		c.logger.Debug().Str("query", sig.Name()).Str("key", sig.Key()).Str("status", string(entry.Status)).Msg("cache hit")
	}
	return entry, started
}

// needsFetch reports whether a cached entry must be fetched on mount. Error
// entries that arrived through hydration are retried once on the client.
func needsFetch(e cache.Entry) bool {
	switch e.Status {
	case cache.StatusSuccess:
		return false
	case cache.StatusError:
		return e.Hydrated
	default:
		return true
	}
}

// start joins or starts the single fetch of sig for generation gen.
func (c *Client) start(ctx context.Context, sig cache.Signature, gen uint64, fetch cache.Fetcher) <-chan singleflight.Result {
	flightKey := sig.Key() + "#" + strconv.FormatUint(gen, 10)
	detached := context.WithoutCancel(ctx)
	return c.flights.DoChan(flightKey, func() (any, error) {
		return c.run(detached, sig, gen, fetch), nil
	})
}

// run executes fetch and commits its outcome unless sig was deleted since
// the fetch started.
func (c *Client) run(ctx context.Context, sig cache.Signature, gen uint64, fetch cache.Fetcher) cache.Entry {
	ctx, span := c.tracer.Start(ctx, "querysync.fetch", trace.WithAttributes(
		attribute.String("query.name", sig.Name()),
		attribute.String("query.key", sig.Key()),
	))
	defer span.End()

	// A joiner may arrive after the flight for gen already committed.
	if cur, _ := c.store.Get(sig); cur.Status != cache.StatusLoading || cur.Generation != gen {
		return cur
	}

	data, err := safeFetch(ctx, fetch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	committed := true
	entry, _ := c.store.Update(sig, func(cur cache.Entry, ok bool) (cache.Entry, bool) {
		if cur.Generation != gen {
			committed = false
			return cur, false
		}
		if err != nil {
			return cache.Failure(cache.Classify(err), cur.Data), true
		}
		return cache.Success(data), true
	})

	if !committed {
		span.SetAttributes(attribute.Bool("query.stale", true))
		c.logger.Debug().Str("query", sig.Name()).Str("key", sig.Key()).Msg("discarded stale fetch")
	}
	return entry
}

func safeFetch(ctx context.Context, fetch cache.Fetcher) (data json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("querysync: fetcher panicked: %v", r)
		}
	}()
	return fetch(ctx)
}

// Observe subscribes listener to sig and mounts the query. The listener
// receives every state the view should render; removals caused by
// invalidation are not forwarded since a refetch follows them. The returned
// function unsubscribes and waits for a delivery in progress; a listener must
// not call it synchronously.
func (c *Client) Observe(ctx context.Context, sig cache.Signature, fetch cache.Fetcher, listener func(Result)) (Result, func()) {
	unsubscribe := c.store.Subscribe(sig, func(entry cache.Entry, present bool) {
		if !present {
			return
		}
		listener(resultOf(entry))
	})
	return c.UseResult(ctx, sig, fetch), unsubscribe
}

// Invalidate removes every live entry whose query name is listed and
// refetches those that have subscribers. It returns the removed signatures.
func (c *Client) Invalidate(ctx context.Context, names ...string) []cache.Signature {
	var removed []cache.Signature
	for _, name := range names {
		for _, sig := range c.store.Signatures(name) {
			c.store.Delete(sig)
			removed = append(removed, sig)
		}
	}

	for _, sig := range removed {
		if c.store.SubscriberCount(sig) == 0 {
			continue
		}
		entry, started := c.mount(sig, false)
		if started {
			c.start(ctx, sig, entry.Generation, c.register(sig, nil))
		}
	}

	if len(removed) > 0 {
		c.logger.Debug().Strs("queries", names).Int("invalidated", len(removed)).Msg("invalidated queries")
	}
	return removed
}

// Hydrate seeds the store from a server snapshot. Signatures that already
// have an entry are left untouched. It must run once, before the first read;
// an empty state is a no-op.
func (c *Client) Hydrate(state cache.DehydratedState) error {
	if state.IsEmpty() {
		return nil
	}

	c.hydrateMu.Lock()
	defer c.hydrateMu.Unlock()
	if c.hydrated {
		return ErrAlreadyHydrated
	}
	if c.read.Load() {
		return ErrHydrateAfterRead
	}
	c.hydrated = true

	seeded := 0
	for _, q := range state.Queries {
		if !q.State.Status.Settled() {
			continue
		}
		sig := q.Signature(c.codec)
		c.store.Update(sig, func(cur cache.Entry, ok bool) (cache.Entry, bool) {
			if ok {
				return cur, false
			}
			seeded++
			return q.State.Entry(), true
		})
	}

	c.logger.Debug().Int("queries", len(state.Queries)).Int("seeded", seeded).Msg("hydrated")
	return nil
}

// Dehydrate snapshots every settled entry that can cross a process boundary,
// ordered by signature key.
func (c *Client) Dehydrate() cache.DehydratedState {
	state := cache.DehydratedState{Queries: []cache.DehydratedQuery{}}
	for _, rec := range c.store.Snapshot() {
		if !rec.Entry.Status.Settled() || !rec.Signature.Portable() {
			continue
		}
		state.Queries = append(state.Queries, cache.DehydratedQuery{
			Name:   rec.Signature.Name(),
			Params: rec.Signature.Params(),
			State:  rec.Entry.Snapshot(),
		})
	}
	return state
}
