// Package web serves the feed pages. Each render runs its queries through a
// fresh query client, embeds the dehydrated state in the page and lets
// clients hydrate from it.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/internal/feed"
	"github.com/goliatone/go-querysync/internal/identity"
	"github.com/goliatone/go-querysync/internal/rpc"
	"github.com/goliatone/go-querysync/pkg/di"
	"github.com/goliatone/go-querysync/querysync"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// ServerOptions configures a Server.
type ServerOptions struct {
	Container   *di.Container
	Sessions    *identity.Sessions
	Logger      zerolog.Logger
	PageTTL     time.Duration
	StaticPaths StaticPaths
}

// Server renders pages and serves the procedure API.
type Server struct {
	container *di.Container
	sessions  *identity.Sessions
	logger    zerolog.Logger
	tmpl      *template.Template
	pages     *PageCache
	paths     StaticPaths
	api       *rpc.Handler
}

// NewServer creates a Server.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Container == nil {
		return nil, errors.New("web: container is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("web: sessions are required")
	}
	if opts.PageTTL <= 0 {
		opts.PageTTL = time.Hour
	}
	if opts.StaticPaths.Fallback == "" {
		opts.StaticPaths = ProfilePaths()
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}

	return &Server{
		container: opts.Container,
		sessions:  opts.Sessions,
		logger:    opts.Logger,
		tmpl:      tmpl,
		pages:     NewPageCache(1000, opts.PageTTL),
		paths:     opts.StaticPaths,
		api:       rpc.NewHandler(opts.Container.Router()),
	}, nil
}

// Pages returns the profile page cache.
func (s *Server) Pages() *PageCache {
	return s.pages
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)
	r.Use(s.sessions.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/", s.handleHome)
	r.Get("/@{username}", s.handleProfile)
	r.With(identity.RequireUser).Post("/posts", s.handleCreatePost)
	r.Post("/auth/signin", s.sessions.HandleSignIn)
	r.Post("/auth/signout", s.sessions.HandleSignOut)

	api := s.api.Routes()
	api.Get("/state", s.handleState)
	r.Mount("/api", api)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusNotFound, "notfound", pageData{Title: "Not found"})
	})
	return r
}

// Prerender renders every static path into the page cache.
func (s *Server) Prerender(ctx context.Context) error {
	for _, path := range s.paths.Paths {
		params, ok := ResolveProfile(path)
		if !ok {
			s.logger.Warn().Str("path", path).Msg("skipping unresolvable static path")
			continue
		}
		if _, err := s.profilePage(ctx, params); err != nil && !errors.Is(err, errPageNotFound) {
			return err
		}
	}
	return nil
}

type composerData struct {
	Input string
	Error string
}

type pageData struct {
	Title     string
	User      *identity.User
	State     template.JS
	Posts     []feed.PostWithAuthor
	FeedError string
	Profile   *feed.Author
	Composer  composerData
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	page, err := s.homePage(r.Context(), composerData{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, page)
}

func (s *Server) homePage(ctx context.Context, composer composerData) (Page, error) {
	client, err := s.container.NewClient()
	if err != nil {
		return Page{}, err
	}

	sig, fetch := client.Query(feed.QueryAllPosts, nil)
	client.Prefetch(ctx, sig, fetch)
	res := client.Peek(sig)

	data := pageData{Title: "Feed", Composer: composer}
	if u, ok := identity.FromContext(ctx); ok {
		data.User = &u
	}
	if res.IsSuccess() {
		data.Posts, err = querysync.Decode[[]feed.PostWithAuthor](res)
		if err != nil {
			return Page{}, err
		}
	} else {
		data.FeedError = "Something went wrong"
	}

	status := http.StatusOK
	if composer.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	return s.renderPage(client.Dehydrate(), status, "home", data)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	params, ok := ResolveProfile(chi.URLParam(r, "username"))
	if !ok {
		s.render(w, r, http.StatusNotFound, "notfound", pageData{Title: "Not found"})
		return
	}

	page, err := s.profilePage(r.Context(), params)
	if err != nil && !errors.Is(err, errPageNotFound) {
		s.fail(w, r, err)
		return
	}
	writePage(w, page)
}

// profilePage returns the cached profile page or renders it. Pages for
// missing users are returned along with errPageNotFound so they stay out of
// the cache.
func (s *Server) profilePage(ctx context.Context, params feed.UserParams) (Page, error) {
	var notFound Page
	page, err := s.pages.GetOrRender(ctx, params.Username, func(ctx context.Context) (Page, error) {
		client, err := s.container.NewClient()
		if err != nil {
			return Page{}, err
		}

		sig, fetch := client.Query(feed.QueryUserByUsername, params)
		client.Prefetch(ctx, sig, fetch)
		res := client.Peek(sig)
		state := client.Dehydrate()

		switch {
		case res.IsNotFound():
			notFound, err = s.renderPage(state, http.StatusNotFound, "notfound", pageData{Title: "Not found"})
			if err != nil {
				return Page{}, err
			}
			return Page{}, errPageNotFound
		case res.IsError():
			return Page{}, res.Err
		case !res.IsSuccess():
			return Page{}, errors.New("web: profile query did not settle")
		}

		author, err := querysync.Decode[feed.Author](res)
		if err != nil {
			return Page{}, err
		}
		return s.renderPage(state, http.StatusOK, "profile", pageData{
			Title:   "@" + author.Username,
			Profile: &author,
		})
	})
	if errors.Is(err, errPageNotFound) {
		// callers that joined another request's render get a stateless page
		if notFound.Body == nil {
			joined, rerr := s.renderPage(cache.DehydratedState{}, http.StatusNotFound, "notfound", pageData{Title: "Not found"})
			if rerr != nil {
				return Page{}, rerr
			}
			return joined, err
		}
		return notFound, err
	}
	return page, err
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	client, err := s.container.NewClient()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	composer := NewComposer(client)
	composer.SetInput(r.FormValue("content"))
	if res := composer.Submit(r.Context()); res.OK() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	page, err := s.homePage(r.Context(), composerData{Input: composer.Input(), Error: composer.Error()})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, page)
}

// handleState serves the state a page would embed, as JSON or msgpack.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")

	var (
		page Page
		err  error
	)
	switch {
	case path == "" || path == "/":
		page, err = s.homePage(r.Context(), composerData{})
	case strings.HasPrefix(path, "/@"):
		params, ok := ResolveProfile(path)
		if !ok {
			http.Error(w, "unknown path", http.StatusNotFound)
			return
		}
		page, err = s.profilePage(r.Context(), params)
		if errors.Is(err, errPageNotFound) {
			err = nil
		}
	default:
		http.Error(w, "unknown path", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	format := cache.FormatJSON
	if strings.Contains(r.Header.Get("Accept"), string(cache.FormatMsgpack)) {
		format = cache.FormatMsgpack
	}
	body, err := cache.MarshalState(page.State, format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", string(format))
	_, _ = w.Write(body)
}

func (s *Server) renderPage(state cache.DehydratedState, status int, name string, data pageData) (Page, error) {
	embedded, err := EmbedState(state)
	if err != nil {
		return Page{}, err
	}
	data.State = embedded

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return Page{}, err
	}
	return Page{Status: status, Body: buf.Bytes(), State: state}, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	page, err := s.renderPage(cache.DehydratedState{}, status, name, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, page)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	info := cache.Classify(err)
	hlog.FromRequest(r).Error().Err(err).Str("code", string(info.Code)).Msg("render failed")

	status := rpc.StatusFor(info.Code)
	var buf bytes.Buffer
	if terr := s.tmpl.ExecuteTemplate(&buf, "failure", pageData{Title: "Error", State: "{}"}); terr != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	writePage(w, Page{Status: status, Body: buf.Bytes()})
}

func writePage(w http.ResponseWriter, page Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(page.Status)
	_, _ = w.Write(page.Body)
}
