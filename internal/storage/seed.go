package storage

import (
	"context"
	"time"
)

type seedPost struct {
	author  string
	content string
}

var (
	seedUsers = map[string]string{
		"ada":   "https://images.example.com/ada.png",
		"grace": "https://images.example.com/grace.png",
	}
	seedPosts = []seedPost{
		{author: "ada", content: "🚀✨"},
		{author: "grace", content: "🐛🔍"},
		{author: "ada", content: "🧮❤️"},
	}
)

// Seed adds demo users and posts. It only writes posts into an empty feed,
// so running it twice is harmless.
func (s *Store) Seed(ctx context.Context) error {
	ids := make(map[string]*User, len(seedUsers))
	for name, image := range seedUsers {
		user, err := s.EnsureUser(ctx, name, image)
		if err != nil {
			return err
		}
		ids[name] = user
	}

	existing, err := s.LatestPosts(ctx, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	base := s.now().Add(-time.Duration(len(seedPosts)) * time.Minute)
	for i, p := range seedPosts {
		at := base.Add(time.Duration(i) * time.Minute)
		if _, err := s.createPostAt(ctx, ids[p.author].ID, p.content, at); err != nil {
			return err
		}
	}
	return nil
}
