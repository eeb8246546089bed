package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is an authored text post. Name and Avatar are copied from the author
// at creation time and never re-synced.
type Post struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"_id"`
	UserID    string    `gorm:"not null;index;type:varchar(36)" json:"user"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	Likes     []Like    `gorm:"foreignKey:PostID" json:"likes"`
	CreatedAt time.Time `gorm:"index" json:"date"`
}

// BeforeCreate assigns an ID when the caller did not.
func (p *Post) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// AfterFind keeps Likes non-nil so it serializes as [].
func (p *Post) AfterFind(_ *gorm.DB) error {
	if p.Likes == nil {
		p.Likes = []Like{}
	}
	return nil
}

// Like records that a user liked a post. A user appears at most once per
// post; the unique index enforces it at the store.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	PostID    string    `gorm:"not null;uniqueIndex:idx_likes_post_user;type:varchar(36)" json:"-"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_likes_post_user;index;type:varchar(36)" json:"user"`
	CreatedAt time.Time `json:"date"`
}

// LikedBy reports whether userID is in the post's like sequence.
func (p *Post) LikedBy(userID string) bool {
	for _, l := range p.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}
