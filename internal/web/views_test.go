package web

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/internal/feed"
	"github.com/goliatone/go-querysync/internal/identity"
	"github.com/goliatone/go-querysync/pkg/testsupport"
	"github.com/goliatone/go-querysync/querysync"
)

func TestFeedView_RefetchesAfterPost(t *testing.T) {
	env := newTestEnv(t)
	client, err := env.container.NewClient()
	require.NoError(t, err)

	ada := env.store.ensure("ada")
	ctx := identity.WithUser(context.Background(), identity.User{ID: ada.ID, Username: ada.Username})

	var out bytes.Buffer
	view := NewFeedView(client, &out)
	stop := view.Mount(ctx)
	defer stop()

	require.Eventually(t, func() bool {
		s := view.Statuses()
		return len(s) == 2 && s[1] == cache.StatusSuccess
	}, 2*time.Second, 5*time.Millisecond)

	composer := NewComposer(client)
	composer.SetInput("🚀")
	res := composer.Submit(ctx)
	require.True(t, res.OK(), "post failed: %v", res.Err)
	assert.Empty(t, composer.Input())
	assert.Empty(t, composer.Error())
	assert.False(t, composer.IsPosting())

	require.Eventually(t, func() bool { return len(view.Statuses()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []cache.Status{
		cache.StatusLoading,
		cache.StatusSuccess,
		cache.StatusLoading,
		cache.StatusSuccess,
	}, view.Statuses())

	posts := view.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "🚀", posts[0].Post.Content)

	_, postReads := env.store.reads()
	assert.Equal(t, 2, postReads)

	rendered := out.String()
	assert.Equal(t, 2, strings.Count(rendered, "Loading feed..."))
	assert.Contains(t, rendered, "No posts yet")
	assert.Contains(t, rendered, "@ada · May 1 12:01 · 🚀")
}

func TestFeedView_HydratedFeedRendersWithoutFetch(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/")
	require.Equal(t, 200, resp.StatusCode)

	state, err := ExtractState(strings.NewReader(body))
	require.NoError(t, err)

	client, err := env.container.NewClient()
	require.NoError(t, err)
	require.NoError(t, client.Hydrate(state))

	var out bytes.Buffer
	view := NewFeedView(client, &out)
	stop := view.Mount(context.Background())
	defer stop()

	assert.Equal(t, []cache.Status{cache.StatusSuccess}, view.Statuses())
	assert.Equal(t, "No posts yet\n", out.String())

	_, postReads := env.store.reads()
	assert.Equal(t, 1, postReads)
}

func TestFeedView_RendersStateFixture(t *testing.T) {
	env := newTestEnv(t)
	client, err := env.container.NewClient()
	require.NoError(t, err)
	require.NoError(t, client.Hydrate(testsupport.LoadStateFixture(t, testsupport.FixturePath("feed_state.json"))))

	var out bytes.Buffer
	view := NewFeedView(client, &out)
	stop := view.Mount(context.Background())
	defer stop()

	assert.Equal(t, "@ada · May 1 12:05 · 🌱🌞\n", out.String())
	_, postReads := env.store.reads()
	assert.Zero(t, postReads)
}

func TestComposer_Errors(t *testing.T) {
	env := newTestEnv(t)
	client, err := env.container.NewClient()
	require.NoError(t, err)

	ada := env.store.ensure("ada")
	signedIn := identity.WithUser(context.Background(), identity.User{ID: ada.ID, Username: ada.Username})

	tests := []struct {
		name    string
		ctx     context.Context
		input   string
		message string
	}{
		{name: "not emoji", ctx: signedIn, input: "hi", message: "Only emojis are allowed"},
		{name: "empty", ctx: signedIn, input: "", message: "Post cannot be empty"},
		{name: "signed out", ctx: context.Background(), input: "🚀", message: cache.GenericFailureMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			composer := NewComposer(client)
			composer.SetInput(tt.input)

			res := composer.Submit(tt.ctx)
			require.False(t, res.OK())
			assert.Equal(t, tt.message, composer.Error())
			assert.Equal(t, tt.input, composer.Input())
		})
	}
}

func TestFormatProfile(t *testing.T) {
	tests := []struct {
		name string
		res  querysync.Result
		want string
	}{
		{name: "loading", res: querysync.Result{Status: cache.StatusLoading}, want: "Loading...\n"},
		{name: "not found", res: querysync.Result{Status: cache.StatusError, Err: &cache.ErrorInfo{Code: cache.CodeNotFound}}, want: "404\n"},
		{name: "failure", res: querysync.Result{Status: cache.StatusError, Err: &cache.ErrorInfo{Code: cache.CodeTransient}}, want: "Something went wrong\n"},
		{name: "success", res: querysync.Result{Status: cache.StatusSuccess, Data: []byte(`{"username":"ada"}`)}, want: "@ada\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatProfile(tt.res))
		})
	}
}

func TestFormatFeed(t *testing.T) {
	assert.Equal(t, "No posts yet\n", FormatFeed(nil))

	posts := []feed.PostWithAuthor{{
		Post:   feed.Post{Content: "✨", CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)},
		Author: feed.Author{Username: "grace"},
	}}
	assert.Equal(t, "@grace · May 1 09:30 · ✨\n", FormatFeed(posts))
}
