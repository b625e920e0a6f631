package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/internal/feed"
	"github.com/goliatone/go-querysync/querysync"
)

// FeedView renders the post feed as text each time the feed query changes.
type FeedView struct {
	client *querysync.Client
	out    io.Writer

	mu       sync.Mutex
	statuses []cache.Status
	posts    []feed.PostWithAuthor
}

// NewFeedView creates a feed view writing to out.
func NewFeedView(client *querysync.Client, out io.Writer) *FeedView {
	return &FeedView{client: client, out: out}
}

// Mount observes the feed and renders the current state. The returned
// function stops observing.
func (v *FeedView) Mount(ctx context.Context) func() {
	sig, fetch := v.client.Query(feed.QueryAllPosts, nil)
	first, stop := v.client.Observe(ctx, sig, fetch, v.render)

	v.mu.Lock()
	if len(v.statuses) == 0 {
		v.renderLocked(first)
	}
	v.mu.Unlock()
	return stop
}

// Statuses returns every status the view rendered, in order.
func (v *FeedView) Statuses() []cache.Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]cache.Status(nil), v.statuses...)
}

// Posts returns the posts of the last successful render.
func (v *FeedView) Posts() []feed.PostWithAuthor {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]feed.PostWithAuthor(nil), v.posts...)
}

func (v *FeedView) render(r querysync.Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renderLocked(r)
}

func (v *FeedView) renderLocked(r querysync.Result) {
	// a refetch of an unchanged state is not rendered twice
	if n := len(v.statuses); n > 0 && v.statuses[n-1] == r.Status && !r.IsSuccess() {
		return
	}
	v.statuses = append(v.statuses, r.Status)

	var b strings.Builder
	switch {
	case r.IsLoading():
		b.WriteString("Loading feed...\n")
	case r.IsError():
		b.WriteString("Something went wrong\n")
	default:
		posts, err := querysync.Decode[[]feed.PostWithAuthor](r)
		if err != nil {
			b.WriteString("Something went wrong\n")
			break
		}
		v.posts = posts
		b.WriteString(FormatFeed(posts))
	}
	_, _ = io.WriteString(v.out, b.String())
}

// FormatFeed renders posts one per line.
func FormatFeed(posts []feed.PostWithAuthor) string {
	if len(posts) == 0 {
		return "No posts yet\n"
	}
	var b strings.Builder
	for _, p := range posts {
		fmt.Fprintf(&b, "@%s · %s · %s\n", p.Author.Username, p.Post.CreatedAt.Format("Jan 2 15:04"), p.Post.Content)
	}
	return b.String()
}

// FormatProfile renders a profile query result. A missing user renders the
// not found state.
func FormatProfile(r querysync.Result) string {
	switch {
	case r.IsLoading():
		return "Loading...\n"
	case r.IsNotFound():
		return "404\n"
	case r.IsError():
		return "Something went wrong\n"
	}
	author, err := querysync.Decode[feed.Author](r)
	if err != nil {
		return "Something went wrong\n"
	}
	return "@" + author.Username + "\n"
}

// Composer holds the post input and submits it through a Mutation. A
// successful post clears the input; a failed one keeps it and sets Error.
type Composer struct {
	mutation *querysync.Mutation

	mu    sync.Mutex
	input string
	err   string
}

// NewComposer creates a composer over client.
func NewComposer(client *querysync.Client) *Composer {
	c := &Composer{}
	c.mutation = client.Mutation(feed.CommandCreatePost, querysync.MutateOptions{
		OnSuccess: func(json.RawMessage) {
			c.mu.Lock()
			c.input = ""
			c.err = ""
			c.mu.Unlock()
		},
		OnError: func(info *cache.ErrorInfo) {
			c.mu.Lock()
			c.err = info.UserMessage()
			c.mu.Unlock()
		},
	})
	return c
}

// SetInput replaces the input.
func (c *Composer) SetInput(s string) {
	c.mu.Lock()
	c.input = s
	c.mu.Unlock()
}

// Input returns the current input.
func (c *Composer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Error returns the message of the last failed submit.
func (c *Composer) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// IsPosting reports whether a submit is in flight.
func (c *Composer) IsPosting() bool {
	return c.mutation.IsPending()
}

// Submit posts the current input.
func (c *Composer) Submit(ctx context.Context) querysync.MutationResult {
	return c.mutation.Mutate(ctx, feed.CreatePostInput{Content: c.Input()})
}
