// Package repository declares the storage contracts the service layer depends on.
//
// Services receive these interfaces, never a concrete store, so tests can swap
// in fakes and the production binary can choose SQLite or Postgres at startup.
package repository

import (
	"context"

	"github.com/sakif/devxboard/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// TemplateQuery describes one page of templates for the feed. Search is a
// case-insensitive substring matched against title, subtitle and the owner's
// username inside the storage query.
type TemplateQuery struct {
	ListOptions
	Filter   model.FeedFilter
	ViewerID string
	Search   string
}

// ProfileRepository is the Profile Directory's storage.
type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
	// GetProfiles fetches every listed profile in one query. Unknown ids are
	// simply absent from the result.
	GetProfiles(ctx context.Context, ids []string) (map[string]*model.Profile, error)
	// GetProfilesByUsername is GetProfiles keyed by username.
	GetProfilesByUsername(ctx context.Context, usernames []string) (map[string]*model.Profile, error)
	UpsertGitHubProfile(ctx context.Context, p *model.Profile) error
	CreateProfile(ctx context.Context, p *model.Profile) error
	UpdateProfile(ctx context.Context, p *model.Profile) error
	SearchProfiles(ctx context.Context, prefix string, limit int) ([]model.Profile, error)
}

// TemplateRepository stores templates with their code blocks and share grants.
// Every write runs in a single transaction.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t *model.Template, grants []string) error
	// UpdateTemplate replaces scalars, blocks and grants of a template owned
	// by t.UserID. A template owned by someone else reports NotFound.
	UpdateTemplate(ctx context.Context, t *model.Template, grants []string) error
	// DeleteTemplate is idempotent for missing ids and Forbidden for another
	// owner's template. Blocks, grants and engagement rows cascade.
	DeleteTemplate(ctx context.Context, id, ownerID string) error
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	ListTemplates(ctx context.Context, q TemplateQuery) ([]model.Template, error)
	ListBlocks(ctx context.Context, templateIDs []string) (map[string][]model.CodeBlock, error)
	ListPrivateUnshared(ctx context.Context, ownerID string) ([]model.Template, error)
	SetCorrectedCode(ctx context.Context, templateID, ownerID string, position int, corrected string) error
}

// ShareRepository is the Sharing Resolver's storage.
type ShareRepository interface {
	// ReplaceShares deletes every grant of the template and, only when the
	// template is private, inserts the given ones.
	ReplaceShares(ctx context.Context, templateID, ownerID string, usernames []string) error
	HasGrant(ctx context.Context, templateID, username string) (bool, error)
	ListGrants(ctx context.Context, templateIDs []string) (map[string][]string, error)
	ListSharedWith(ctx context.Context, username string) ([]model.Template, error)
	ListSharedBy(ctx context.Context, ownerID string) ([]model.Template, error)
}

// EngagementRepository is the Engagement Ledger's storage.
type EngagementRepository interface {
	ToggleLike(ctx context.Context, templateID, userID string) (bool, error)
	ToggleSave(ctx context.Context, templateID, userID string) (bool, error)
	AddComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	DeleteComment(ctx context.Context, id string) error
	ListComments(ctx context.Context, templateID string) ([]model.Comment, error)
	CountComments(ctx context.Context, templateIDs []string) (map[string]int, error)
	// ViewerState returns the subsets of templateIDs the user liked and saved.
	ViewerState(ctx context.Context, userID string, templateIDs []string) (liked, saved map[string]bool, err error)
}

type CardRepository interface {
	CreateCard(ctx context.Context, c *model.Card) error
	GetCard(ctx context.Context, id string) (*model.Card, error)
	ListCards(ctx context.Context, userID string, opts ListOptions) ([]model.Card, error)
	UpdateCard(ctx context.Context, c *model.Card) error
	DeleteCard(ctx context.Context, id string) error
}
