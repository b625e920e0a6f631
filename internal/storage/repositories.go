package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NewUserRepository returns the users repository. Users are identified by
// username.
func NewUserRepository(db *bun.DB) repository.Repository[*User] {
	return repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			u.ID = id
		},
		GetIdentifier: func() string {
			return "username"
		},
	})
}

// NewPostRepository returns the posts repository.
func NewPostRepository(db *bun.DB) repository.Repository[*Post] {
	return repository.NewRepository[*Post](db, repository.ModelHandlers[*Post]{
		NewRecord: func() *Post { return &Post{} },
		GetID: func(p *Post) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Post, id uuid.UUID) {
			p.ID = id
		},
		GetIdentifier: func() string {
			return "id"
		},
	})
}

// Store groups the repositories behind the read and write procedures.
type Store struct {
	Users repository.Repository[*User]
	Posts repository.Repository[*Post]
	now   func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the clock used for creation timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wires the repositories over db.
func NewStore(db *bun.DB, opts ...StoreOption) *Store {
	s := &Store{
		Users: NewUserRepository(db),
		Posts: NewPostRepository(db),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserByUsername finds a user. A missing user is a not found error.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	user, err := s.Users.GetByIdentifier(ctx, username)
	if err != nil {
		return nil, mapError(err, "user not found")
	}
	return user, nil
}

// EnsureUser returns the user named username, creating it when missing.
func (s *Store) EnsureUser(ctx context.Context, username, imageURL string) (*User, error) {
	user, err := s.UserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !goerrors.IsNotFound(err) {
		return nil, err
	}

	created, err := s.Users.Create(ctx, &User{
		ID:              uuid.New(),
		Username:        username,
		ProfileImageURL: imageURL,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return nil, mapError(err, "could not create user")
	}
	return created, nil
}

// LatestPosts lists up to limit posts, newest first, with their authors.
func (s *Store) LatestPosts(ctx context.Context, limit int) ([]*Post, error) {
	posts, _, err := s.Posts.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Relation("Author").
			OrderExpr("?TableAlias.created_at DESC").
			Limit(limit)
	})
	if err != nil {
		return nil, mapError(err, "could not list posts")
	}
	return posts, nil
}

// CreatePost stores a post written by authorID.
func (s *Store) CreatePost(ctx context.Context, authorID uuid.UUID, content string) (*Post, error) {
	return s.createPostAt(ctx, authorID, content, s.now())
}

func (s *Store) createPostAt(ctx context.Context, authorID uuid.UUID, content string, at time.Time) (*Post, error) {
	post, err := s.Posts.Create(ctx, &Post{
		ID:        uuid.New(),
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: at,
	})
	if err != nil {
		return nil, mapError(err, "could not create post")
	}
	return post, nil
}

// mapError translates database errors into the failure taxonomy: missing
// rows are not found, busy or closed databases are retryable.
func mapError(err error, message string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows), goerrors.IsNotFound(err):
		notFound := goerrors.New(message, goerrors.CategoryNotFound).WithTextCode("NOT_FOUND")
		notFound.Source = err
		return notFound
	case errors.Is(err, sql.ErrConnDone), isBusy(err):
		return goerrors.WrapRetryable(err, goerrors.CategoryExternal, message)
	default:
		return goerrors.Wrap(err, goerrors.CategoryInternal, message)
	}
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database is busy")
}
