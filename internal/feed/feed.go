// Package feed defines the application procedures: profile lookup, the post
// feed and post creation.
package feed

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/internal/identity"
	"github.com/goliatone/go-querysync/internal/storage"
	"github.com/goliatone/go-querysync/querysync"
)

const (
	QueryUserByUsername = "getUserByUsername"
	QueryAllPosts       = "getAllPosts"
	CommandCreatePost   = "createPost"
)

const (
	// DefaultFeedLimit is how many posts the feed returns.
	DefaultFeedLimit = 100
	// MaxPostLength is the longest post in characters.
	MaxPostLength = 280
)

// CreatePostRule is the invalidation declared for createPost: any new post
// may appear in every feed listing.
var CreatePostRule = querysync.Invalidates(QueryAllPosts)

// Rules declares the invalidation of every command, for clients that reach
// the procedures through a remote transport.
func Rules() *querysync.Rules {
	return querysync.NewRules().Declare(CommandCreatePost, CreatePostRule)
}

// Store is the data access the procedures need.
type Store interface {
	UserByUsername(ctx context.Context, username string) (*storage.User, error)
	LatestPosts(ctx context.Context, limit int) ([]*storage.Post, error)
	CreatePost(ctx context.Context, authorID uuid.UUID, content string) (*storage.Post, error)
}

// Author is the public part of a user.
type Author struct {
	ID              uuid.UUID `json:"id"`
	Username        string    `json:"username"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
}

// Post is a post as returned to clients.
type Post struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	AuthorID  uuid.UUID `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostWithAuthor is one feed item.
type PostWithAuthor struct {
	Post   Post   `json:"post"`
	Author Author `json:"author"`
}

// UserParams are the getUserByUsername params.
type UserParams struct {
	Username string `json:"username"`
}

// Validate implements validation.Validatable.
func (p UserParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Required, validation.RuneLength(1, 64)),
	)
}

// CreatePostInput is the createPost payload.
type CreatePostInput struct {
	Content string `json:"content"`
}

// Validate implements validation.Validatable.
func (in CreatePostInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Content,
			validation.Required.Error("Post cannot be empty"),
			validation.RuneLength(1, MaxPostLength).Error("Post must be at most 280 characters"),
			EmojiOnly,
		),
	)
}

// Service implements the procedures over a Store.
type Service struct {
	store  Store
	logger zerolog.Logger
	limit  int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFeedLimit caps the number of posts in the feed.
func WithFeedLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// NewService creates a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: zerolog.Nop(),
		limit:  DefaultFeedLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the procedures to r.
func (s *Service) Register(r *querysync.Router) {
	querysync.Query(r, QueryUserByUsername, s.UserByUsername)
	querysync.Query(r, QueryAllPosts, s.AllPosts)
	querysync.Command(r, CommandCreatePost, CreatePostRule, s.CreatePost)
}

// Register adds the procedures backed by store to r.
func Register(r *querysync.Router, store Store, opts ...Option) *Service {
	s := NewService(store, opts...)
	s.Register(r)
	return s
}

// UserByUsername returns the profile of a user.
func (s *Service) UserByUsername(ctx context.Context, p UserParams) (Author, error) {
	user, err := s.store.UserByUsername(ctx, p.Username)
	if err != nil {
		return Author{}, err
	}
	return authorOf(user), nil
}

// AllPosts returns the newest posts with their authors.
func (s *Service) AllPosts(ctx context.Context, _ struct{}) ([]PostWithAuthor, error) {
	posts, err := s.store.LatestPosts(ctx, s.limit)
	if err != nil {
		return nil, err
	}

	out := make([]PostWithAuthor, 0, len(posts))
	for _, p := range posts {
		if p.Author == nil {
			return nil, goerrors.New("author for post not found", goerrors.CategoryInternal).
				WithMetadata(map[string]any{"post_id": p.ID.String()})
		}
		out = append(out, PostWithAuthor{Post: postOf(p), Author: authorOf(p.Author)})
	}
	return out, nil
}

// CreatePost stores a post by the signed in user.
func (s *Service) CreatePost(ctx context.Context, in CreatePostInput) (Post, error) {
	user, ok := identity.FromContext(ctx)
	if !ok {
		return Post{}, cache.Unauthorized("sign in to post")
	}

	post, err := s.store.CreatePost(ctx, user.ID, in.Content)
	if err != nil {
		return Post{}, err
	}
	s.logger.Debug().
		Str("post_id", post.ID.String()).
		Str("author", user.Username).
		Msg("post created")
	return postOf(post), nil
}

func authorOf(u *storage.User) Author {
	return Author{ID: u.ID, Username: u.Username, ProfileImageURL: u.ProfileImageURL}
}

func postOf(p *storage.Post) Post {
	return Post{ID: p.ID, Content: p.Content, AuthorID: p.AuthorID, CreatedAt: p.CreatedAt}
}
