package model

import "time"

// Comment is an append-only remark on a template. It can be deleted by its
// author or by the template's owner.
type Comment struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	UserID     string         `json:"user_id"`
	Comment    string         `json:"comment"`
	CreatedAt  time.Time      `json:"created_at"`
	Author     *PublicProfile `json:"author,omitempty"`
}

// FeedFilter selects the base set of the community feed.
type FeedFilter string

const (
	FeedAll   FeedFilter = "all"
	FeedLiked FeedFilter = "liked"
	FeedSaved FeedFilter = "saved"
)

// FeedEntry is a template as presented in the community feed.
//
// Liked and Saved are pointers: they are nil for anonymous viewers, so the
// JSON omits them instead of claiming false for someone we cannot identify.
// CommentCount is computed per page; it is not stored on the template.
type FeedEntry struct {
	Template
	Owner        *PublicProfile `json:"owner"`
	CommentCount int            `json:"comment_count"`
	Liked        *bool          `json:"liked,omitempty"`
	Saved        *bool          `json:"saved,omitempty"`
}
