package model

import (
	"strings"
	"time"
)

// Visibility controls who may see a template.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is one of the known visibility values.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Template is a shareable unit: a title, a cover image and an ordered list
// of code blocks. UserID is the owner and never changes after creation.
//
// LikeCount is a denormalized counter kept in step with the like rows by the
// store; it is never written from request data.
type Template struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Title      string      `json:"title"`
	Subtitle   string      `json:"subtitle"`
	CoverImage string      `json:"cover_image"`
	Visibility Visibility  `json:"visibility"`
	LikeCount  int         `json:"like_count"`
	Blocks     []CodeBlock `json:"blocks"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// CodeBlock is one description/code pair inside a template. Blocks are
// replaced wholesale on every template update, so their ids are not stable
// across updates.
type CodeBlock struct {
	ID            string  `json:"id"`
	TemplateID    string  `json:"template_id"`
	Position      int     `json:"position"`
	Description   string  `json:"description"`
	Code          string  `json:"code"`
	CorrectedCode *string `json:"corrected_code,omitempty"`
}

// Empty reports whether the block carries neither code nor description.
func (b CodeBlock) Empty() bool {
	return strings.TrimSpace(b.Code) == "" && strings.TrimSpace(b.Description) == ""
}

// SharedTemplate is a template annotated for the sharing views: the owner's
// public profile (shared-with-me) or the list of grantees (shared-by-me).
type SharedTemplate struct {
	Template
	Owner      *PublicProfile   `json:"owner,omitempty"`
	SharedWith []*PublicProfile `json:"shared_with,omitempty"`
}
