package web

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/internal/feed"
	"github.com/goliatone/go-querysync/internal/identity"
	"github.com/goliatone/go-querysync/internal/storage"
	"github.com/goliatone/go-querysync/pkg/di"
	"github.com/goliatone/go-querysync/querysync"
)

var adaID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

// memoryStore is an in-memory feed.Store that counts reads.
type memoryStore struct {
	mu        sync.Mutex
	users     map[string]*storage.User
	posts     []*storage.Post
	now       time.Time
	userReads int
	postReads int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users: map[string]*storage.User{
			"ada": {ID: adaID, Username: "ada"},
		},
		now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memoryStore) UserByUsername(ctx context.Context, username string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userReads++
	if u, ok := s.users[username]; ok {
		return u, nil
	}
	return nil, cache.NotFound("user not found")
}

func (s *memoryStore) LatestPosts(ctx context.Context, limit int) ([]*storage.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postReads++
	out := append([]*storage.Post(nil), s.posts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) CreatePost(ctx context.Context, authorID uuid.UUID, content string) (*storage.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var author *storage.User
	for _, u := range s.users {
		if u.ID == authorID {
			author = u
		}
	}
	s.now = s.now.Add(time.Minute)
	p := &storage.Post{ID: uuid.New(), Content: content, AuthorID: authorID, Author: author, CreatedAt: s.now}
	s.posts = append(s.posts, p)
	return p, nil
}

func (s *memoryStore) ensure(username string) *storage.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		return u
	}
	u := &storage.User{ID: uuid.New(), Username: username}
	s.users[username] = u
	return u
}

func (s *memoryStore) reads() (users, posts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userReads, s.postReads
}

type testEnv struct {
	store     *memoryStore
	router    *querysync.Router
	container *di.Container
	server    *Server
	http      *httptest.Server
	client    *http.Client
}

func newTestEnv(t *testing.T, opts ...func(*ServerOptions)) *testEnv {
	t.Helper()

	store := newMemoryStore()
	router := querysync.NewRouter()
	feed.Register(router, store)

	container, err := di.NewContainerWithDefaults(di.WithRouter(router))
	require.NoError(t, err)

	sessions := identity.NewSessions(identity.NewSessionManager(time.Hour), identity.DirectoryFunc(
		func(ctx context.Context, username string) (identity.User, error) {
			u := store.ensure(username)
			return identity.User{ID: u.ID, Username: u.Username}, nil
		},
	))

	options := ServerOptions{
		Container: container,
		Sessions:  sessions,
		Logger:    zerolog.Nop(),
		PageTTL:   time.Hour,
	}
	for _, opt := range opts {
		opt(&options)
	}
	server, err := NewServer(options)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{
		store:     store,
		router:    router,
		container: container,
		server:    server,
		http:      ts,
		client:    client,
	}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.http.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) signIn(t *testing.T, username string) {
	t.Helper()
	resp, err := e.client.Post(e.http.URL+"/auth/signin", "application/json", strings.NewReader(`{"username":"`+username+`"}`))
	require.NoError(t, err)
	readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
