package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
)

const (
	sessionUserID   = "user_id"
	sessionUsername = "username"
)

// Directory resolves a username into a user, creating it when the provider
// allows it.
type Directory interface {
	Resolve(ctx context.Context, username string) (User, error)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context, username string) (User, error)

// Resolve implements Directory.
func (f DirectoryFunc) Resolve(ctx context.Context, username string) (User, error) {
	return f(ctx, username)
}

// Sessions keeps the signed in user in an scs session.
type Sessions struct {
	manager   *scs.SessionManager
	directory Directory
}

// NewSessionManager returns an scs manager with cookie settings for the feed.
func NewSessionManager(lifetime time.Duration) *scs.SessionManager {
	sess := scs.New()
	sess.Lifetime = lifetime
	sess.Cookie.Name = "feed_session"
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	return sess
}

// NewSessions wraps manager. directory is used by the sign in handler.
func NewSessions(manager *scs.SessionManager, directory Directory) *Sessions {
	return &Sessions{manager: manager, directory: directory}
}

// Manager returns the underlying session manager.
func (s *Sessions) Manager() *scs.SessionManager {
	return s.manager
}

// SignIn stores u in the session. The token is renewed to prevent fixation.
func (s *Sessions) SignIn(ctx context.Context, u User) error {
	if err := s.manager.RenewToken(ctx); err != nil {
		return err
	}
	s.manager.Put(ctx, sessionUserID, u.ID.String())
	s.manager.Put(ctx, sessionUsername, u.Username)
	return nil
}

// SignOut ends the session.
func (s *Sessions) SignOut(ctx context.Context) error {
	return s.manager.Destroy(ctx)
}

// Current returns the user stored in the session.
func (s *Sessions) Current(ctx context.Context) (User, bool) {
	id, err := uuid.Parse(s.manager.GetString(ctx, sessionUserID))
	if err != nil {
		return User{}, false
	}
	return User{ID: id, Username: s.manager.GetString(ctx, sessionUsername)}, true
}

// Middleware loads the session and puts the signed in user, if any, on the
// request context.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return s.manager.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := s.Current(r.Context()); ok {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	}))
}

type signInRequest struct {
	Username string `json:"username"`
}

// HandleSignIn signs in the user named by the JSON body or the "username"
// form value and responds with the user.
func (s *Sessions) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
	} else {
		req.Username = r.FormValue("username")
	}

	username := strings.TrimPrefix(strings.TrimSpace(req.Username), "@")
	if username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}
	if s.directory == nil {
		http.Error(w, "sign in unavailable", http.StatusServiceUnavailable)
		return
	}

	u, err := s.directory.Resolve(r.Context(), username)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("username", username).Msg("sign in failed")
		http.Error(w, "sign in failed", http.StatusInternalServerError)
		return
	}
	if err := s.SignIn(r.Context(), u); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("renew session token")
		http.Error(w, "sign in failed", http.StatusInternalServerError)
		return
	}

	if strings.HasPrefix(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(u)
}

// HandleSignOut ends the session.
func (s *Sessions) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.SignOut(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("sign out failed")
		http.Error(w, "sign out failed", http.StatusInternalServerError)
		return
	}
	if strings.HasPrefix(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireUser rejects requests without a signed in user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !SignedIn(r.Context()) {
			http.Error(w, "sign in required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
