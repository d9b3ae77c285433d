// Package service contains the business rules of DevXBoard.
//
// LAYERS:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (rules)    → validates, authorizes, orchestrates
//	Repository (data)  → reads and writes the database
//
// Services accept plain values and the caller's id, never *http.Request, and
// return apperror values that the handler layer maps to status codes. They
// depend on the repository interfaces, not on sqlstore, so every service can
// be driven by a fake in tests.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

// Validation limits.
const (
	MaxTitleLength      = 120
	MaxSubtitleLength   = 240
	MaxCoverImageLength = 2048
	MaxBlocks           = 50
	MaxCodeLength       = 100000 // ~100KB of code per block
	MaxDescriptionLen   = 5000
)

// TemplateInput is the full content of a create or update. Updates are not
// patches: Blocks and SharedWith replace whatever was stored.
type TemplateInput struct {
	Title      string
	Subtitle   string
	CoverImage string
	Visibility model.Visibility
	Blocks     []model.CodeBlock
	SharedWith []string
}

// TemplateService is the Template Store.
type TemplateService struct {
	templates repository.TemplateRepository
	sharing   *SharingService
	logger    *slog.Logger
}

func NewTemplateService(templates repository.TemplateRepository, sharing *SharingService, logger *slog.Logger) *TemplateService {
	return &TemplateService{
		templates: templates,
		sharing:   sharing,
		logger:    logger,
	}
}

// Create validates and stores a new template owned by ownerID. The template,
// its blocks and its grants are written together or not at all.
func (s *TemplateService) Create(ctx context.Context, ownerID string, in TemplateInput) (*model.Template, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperror.ValidationFailed("user_id", "user_id is required")
	}
	t, err := buildTemplate(in)
	if err != nil {
		return nil, err
	}
	t.UserID = ownerID

	grants, err := s.sharing.ResolveGrants(ctx, ownerID, t.Visibility, in.SharedWith)
	if err != nil {
		return nil, err
	}

	if err := s.templates.CreateTemplate(ctx, t, grants); err != nil {
		if isClientError(err) {
			return nil, err
		}
		s.logger.Error("failed to create template",
			slog.String("owner", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating template: %w", err)
	}

	s.logger.Info("template created",
		slog.String("id", t.ID),
		slog.String("owner", ownerID),
		slog.String("visibility", string(t.Visibility)),
		slog.Int("blocks", len(t.Blocks)),
		slog.Int("grants", len(grants)),
	)
	return t, nil
}

// Update fully replaces the template's content and share list. A template
// that does not exist, or exists under another owner, is NotFound.
func (s *TemplateService) Update(ctx context.Context, id, ownerID string, in TemplateInput) (*model.Template, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("template_id", "template_id is required")
	}
	t, err := buildTemplate(in)
	if err != nil {
		return nil, err
	}
	t.ID = id
	t.UserID = ownerID

	grants, err := s.sharing.ResolveGrants(ctx, ownerID, t.Visibility, in.SharedWith)
	if err != nil {
		return nil, err
	}

	if err := s.templates.UpdateTemplate(ctx, t, grants); err != nil {
		if isClientError(err) {
			return nil, err
		}
		s.logger.Error("failed to update template",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating template: %w", err)
	}

	s.logger.Info("template updated",
		slog.String("id", id),
		slog.Int("blocks", len(t.Blocks)),
		slog.Int("grants", len(grants)),
	)
	return t, nil
}

// Delete removes a template and, through the store's cascades, everything
// attached to it. Deleting a missing template succeeds.
func (s *TemplateService) Delete(ctx context.Context, id, ownerID string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("template_id", "template_id is required")
	}
	if err := s.templates.DeleteTemplate(ctx, id, ownerID); err != nil {
		return err
	}
	s.logger.Info("template deleted", slog.String("id", id), slog.String("owner", ownerID))
	return nil
}

// Get returns a template the viewer is allowed to see.
func (s *TemplateService) Get(ctx context.Context, id, viewerID string) (*model.Template, error) {
	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.sharing.Authorize(ctx, t, viewerID); err != nil {
		return nil, err
	}
	return t, nil
}

// Mine lists the owner's private templates that are shared with nobody.
func (s *TemplateService) Mine(ctx context.Context, ownerID string) ([]model.Template, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperror.ValidationFailed("user_id", "user_id is required")
	}
	templates, err := s.templates.ListPrivateUnshared(ctx, ownerID)
	if err != nil {
		s.logger.Error("failed to list templates", slog.String("owner", ownerID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return templates, nil
}

// buildTemplate validates input and returns the template to store.
func buildTemplate(in TemplateInput) (*model.Template, error) {
	title := strings.TrimSpace(in.Title)
	subtitle := strings.TrimSpace(in.Subtitle)
	cover := strings.TrimSpace(in.CoverImage)

	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if len(subtitle) > MaxSubtitleLength {
		return nil, apperror.ValidationFailed("subtitle",
			fmt.Sprintf("subtitle must be %d characters or less", MaxSubtitleLength))
	}
	if cover == "" {
		return nil, apperror.ValidationFailed("cover_image", "cover image is required")
	}
	if err := validateHTTPURL("cover_image", cover, MaxCoverImageLength); err != nil {
		return nil, err
	}

	visibility := in.Visibility
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, apperror.ValidationFailed("visibility", "visibility must be public or private")
	}

	if len(in.Blocks) == 0 {
		return nil, apperror.ValidationFailed("blocks", "at least one code block is required")
	}
	if len(in.Blocks) > MaxBlocks {
		return nil, apperror.ValidationFailed("blocks",
			fmt.Sprintf("a template can have at most %d code blocks", MaxBlocks))
	}

	blocks := make([]model.CodeBlock, 0, len(in.Blocks))
	hasContent := false
	for i, b := range in.Blocks {
		if len(b.Code) > MaxCodeLength {
			return nil, apperror.ValidationFailed("blocks",
				fmt.Sprintf("code of block %d must be %d characters or less", i+1, MaxCodeLength))
		}
		if len(b.Description) > MaxDescriptionLen {
			return nil, apperror.ValidationFailed("blocks",
				fmt.Sprintf("description of block %d must be %d characters or less", i+1, MaxDescriptionLen))
		}
		if !b.Empty() {
			hasContent = true
		}
		blocks = append(blocks, model.CodeBlock{
			Description:   strings.TrimSpace(b.Description),
			Code:          b.Code,
			CorrectedCode: b.CorrectedCode,
		})
	}
	if !hasContent {
		return nil, apperror.ValidationFailed("blocks", "at least one code block needs code or a description")
	}

	return &model.Template{
		Title:      title,
		Subtitle:   subtitle,
		CoverImage: cover,
		Visibility: visibility,
		Blocks:     blocks,
	}, nil
}

// isClientError reports whether err is one of the taxonomy errors that is
// safe to hand back unchanged.
func isClientError(err error) bool {
	return errors.Is(err, apperror.ErrNotFound) ||
		errors.Is(err, apperror.ErrValidation) ||
		errors.Is(err, apperror.ErrConflict) ||
		errors.Is(err, apperror.ErrForbidden) ||
		errors.Is(err, apperror.ErrUnauthorized)
}
