package web

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/internal/feed"
)

// Fallback is the policy for paths that were not rendered ahead of time.
type Fallback string

const (
	// FallbackNone answers unknown paths with not found.
	FallbackNone Fallback = "none"
	// FallbackBlocking renders unknown paths on first request and caches
	// the result.
	FallbackBlocking Fallback = "blocking"
)

// StaticPaths lists the paths rendered at startup and the policy for the rest.
type StaticPaths struct {
	Paths    []string
	Fallback Fallback
}

// ProfilePaths renders no profile ahead of time: each one is generated on
// its first request.
func ProfilePaths() StaticPaths {
	return StaticPaths{Paths: []string{}, Fallback: FallbackBlocking}
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ResolveProfile maps a profile path key to its query params. A leading "@"
// is dropped; empty or malformed names resolve to not found.
func ResolveProfile(key string) (feed.UserParams, bool) {
	username := strings.TrimPrefix(strings.TrimPrefix(key, "/"), "@")
	if !usernamePattern.MatchString(username) {
		return feed.UserParams{}, false
	}
	return feed.UserParams{Username: username}, true
}

// Page is one rendered page and the state embedded in it.
type Page struct {
	Status int
	Body   []byte
	State  cache.DehydratedState
}

// errPageNotFound is returned by renderers for pages that must not be cached.
var errPageNotFound = errors.New("web: page not found")

// PageCache keeps rendered pages for a TTL. Not found and failed renders are
// never stored, so a page that appears later is generated on its next request.
type PageCache struct {
	client *sturdyc.Client[Page]
}

// NewPageCache creates a cache for up to capacity pages.
func NewPageCache(capacity int, ttl time.Duration) *PageCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &PageCache{client: sturdyc.New[Page](capacity, 8, ttl, 10)}
}

// GetOrRender returns the cached page for key or renders it. Concurrent
// requests for one key share a single render.
func (c *PageCache) GetOrRender(ctx context.Context, key string, render func(ctx context.Context) (Page, error)) (Page, error) {
	return c.client.GetOrFetch(ctx, key, render)
}

// Peek returns a cached page without rendering.
func (c *PageCache) Peek(key string) (Page, bool) {
	return c.client.Get(key)
}

// Invalidate drops a cached page.
func (c *PageCache) Invalidate(key string) {
	c.client.Delete(key)
}

// Size reports the number of cached pages.
func (c *PageCache) Size() int {
	return c.client.Size()
}
