package querysync

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/internal/cacheinfra"
)

type testUser struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

type testPost struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

type userParams struct {
	Username string `json:"username"`
}

func (p userParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Required),
	)
}

type postInput struct {
	Content string `json:"content"`
}

func (p postInput) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Content, validation.Required.Error("Post cannot be empty"), validation.RuneLength(1, 280)),
	)
}

// backend is an in-memory feed exposed through a Router.
type backend struct {
	mu    sync.Mutex
	users map[string]testUser
	posts []testPost
}

func newBackend() *backend {
	return &backend{
		users: map[string]testUser{
			"ada": {Username: "ada", Name: "Ada Lovelace"},
		},
		posts: []testPost{{ID: 1, Content: "first"}},
	}
}

func (b *backend) router() *Router {
	r := NewRouter()
	Query(r, "getUserByUsername", func(ctx context.Context, p userParams) (testUser, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		u, ok := b.users[p.Username]
		if !ok {
			return testUser{}, cache.NotFound("user not found")
		}
		return u, nil
	})
	Query(r, "getAllPosts", func(ctx context.Context, _ struct{}) ([]testPost, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		out := make([]testPost, len(b.posts))
		for i := range b.posts {
			out[len(b.posts)-1-i] = b.posts[i]
		}
		return out, nil
	})
	Command(r, "createPost", Invalidates("getAllPosts"), func(ctx context.Context, in postInput) (testPost, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		post := testPost{ID: len(b.posts) + 1, Content: in.Content}
		b.posts = append(b.posts, post)
		return post, nil
	})
	return r
}

// countingTransport records calls made through it. When gate is set, reads
// block until it is closed.
type countingTransport struct {
	next   Transport
	reads  atomic.Int32
	writes atomic.Int32

	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (t *countingTransport) Read(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	t.reads.Add(1)
	if t.started != nil {
		t.once.Do(func() { close(t.started) })
	}
	if t.gate != nil {
		<-t.gate
	}
	return t.next.Read(ctx, name, params)
}

func (t *countingTransport) Write(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	t.writes.Add(1)
	return t.next.Write(ctx, name, payload)
}

func (t *countingTransport) RuleFor(command string) InvalidationRule {
	if rs, ok := t.next.(RuleSource); ok {
		return rs.RuleFor(command)
	}
	return nil
}

func newTestStore(t *testing.T) *cacheinfra.Store {
	t.Helper()
	store, err := cacheinfra.NewStore(cacheinfra.DefaultConfig())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func newTestClient(t *testing.T, transport Transport, opts ...Option) (*Client, *cacheinfra.Store) {
	t.Helper()
	store := newTestStore(t)
	opts = append([]Option{WithTransport(transport)}, opts...)
	return New(store, opts...), store
}

// collect records every Result an observer receives.
type collect struct {
	mu      sync.Mutex
	results []Result
	updates chan Result
}

func newCollect() *collect {
	return &collect{updates: make(chan Result, 64)}
}

func (c *collect) listen(r Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
	c.updates <- r
}

func (c *collect) statuses() []cache.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]cache.Status, 0, len(c.results))
	for _, r := range c.results {
		out = append(out, r.Status)
	}
	return out
}

// waitFor blocks until an update with status arrives.
func (c *collect) waitFor(t *testing.T, status cache.Status) Result {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r := <-c.updates:
			if r.Status == status {
				return r
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, saw %v", status, c.statuses())
			return Result{}
		}
	}
}
