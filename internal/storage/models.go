package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is a profile that can author posts.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Username        string    `bun:"username,unique,notnull" json:"username"`
	ProfileImageURL string    `bun:"profile_image_url" json:"profileImageUrl,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// Post is a short emoji-only message.
type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Content   string    `bun:"content,notnull" json:"content"`
	AuthorID  uuid.UUID `bun:"author_id,type:uuid,notnull" json:"authorId"`
	Author    *User     `bun:"rel:belongs-to,join:author_id=id" json:"-"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}
