package di

import (
	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/internal/cacheinfra"
	"github.com/goliatone/go-querysync/querysync"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Container provides dependency injection for query cache components.
// It holds the process scoped singletons (store configuration, signature
// codec, procedure router, logger) and builds a fresh store and client for
// every server render or client session.
type Container struct {
	config cacheinfra.Config
	codec  cache.Codec
	router *querysync.Router
	logger zerolog.Logger
	tracer trace.Tracer
}

// Option customizes a Container.
type Option func(*Container)

// WithRouter sets the procedures clients call in process.
func WithRouter(router *querysync.Router) Option {
	return func(c *Container) {
		if router != nil {
			c.router = router
		}
	}
}

// WithLogger sets the logger handed to every client.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithTracer sets the tracer handed to every client.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Container) {
		c.tracer = tracer
	}
}

// NewContainer creates a new DI container with the provided store configuration.
// The configuration is validated up front so that per render store creation
// cannot fail on it later.
func NewContainer(config cacheinfra.Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config: config,
		codec:  cache.NewCanonicalCodec(),
		router: querysync.NewRouter(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cacheinfra.DefaultConfig(), opts...)
}

// Codec returns the singleton signature codec.
func (c *Container) Codec() cache.Codec {
	return c.codec
}

// Router returns the singleton procedure router.
func (c *Container) Router() *querysync.Router {
	return c.router
}

// Logger returns the container logger.
func (c *Container) Logger() zerolog.Logger {
	return c.logger
}

// Config returns a copy of the store configuration used by this container.
func (c *Container) Config() cacheinfra.Config {
	return c.config
}

// NewStore creates an empty store with the container configuration.
func (c *Container) NewStore() (*cacheinfra.Store, error) {
	return cacheinfra.NewStore(c.config)
}

// NewClient creates a client over a new store. By default it calls the
// container router in process; pass querysync.WithTransport to talk to a
// remote server instead.
func (c *Container) NewClient(opts ...querysync.Option) (*querysync.Client, error) {
	store, err := c.NewStore()
	if err != nil {
		return nil, err
	}

	base := []querysync.Option{
		querysync.WithTransport(c.router),
		querysync.WithCodec(c.codec),
		querysync.WithLogger(c.logger),
	}
	if c.tracer != nil {
		base = append(base, querysync.WithTracer(c.tracer))
	}
	return querysync.New(store, append(base, opts...)...), nil
}
