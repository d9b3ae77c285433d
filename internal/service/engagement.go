package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

const MaxCommentLength = 2000

// EngagementService is the Engagement Ledger: likes, saves and comments.
//
// Likes and saves are toggles keyed by (template, user). like_count moves with
// the like rows inside the store's transaction; comment counts are never
// stored and are computed per feed page instead.
type EngagementService struct {
	templates  repository.TemplateRepository
	engagement repository.EngagementRepository
	profiles   repository.ProfileRepository
	sharing    *SharingService
	logger     *slog.Logger
}

func NewEngagementService(
	templates repository.TemplateRepository,
	engagement repository.EngagementRepository,
	profiles repository.ProfileRepository,
	sharing *SharingService,
	logger *slog.Logger,
) *EngagementService {
	return &EngagementService{
		templates:  templates,
		engagement: engagement,
		profiles:   profiles,
		sharing:    sharing,
		logger:     logger,
	}
}

// ToggleLike likes the template, or unlikes it if already liked, and reports
// the new state.
func (s *EngagementService) ToggleLike(ctx context.Context, templateID, userID string) (bool, error) {
	if err := s.checkEngage(ctx, templateID, userID); err != nil {
		return false, err
	}
	liked, err := s.engagement.ToggleLike(ctx, templateID, userID)
	if err != nil {
		return false, s.wrap(err, "toggling like", templateID)
	}
	s.logger.Debug("like toggled",
		slog.String("template_id", templateID),
		slog.String("user_id", userID),
		slog.Bool("liked", liked),
	)
	return liked, nil
}

// ToggleSave bookmarks the template, or removes the bookmark.
func (s *EngagementService) ToggleSave(ctx context.Context, templateID, userID string) (bool, error) {
	if err := s.checkEngage(ctx, templateID, userID); err != nil {
		return false, err
	}
	saved, err := s.engagement.ToggleSave(ctx, templateID, userID)
	if err != nil {
		return false, s.wrap(err, "toggling save", templateID)
	}
	return saved, nil
}

// AddComment appends a comment by userID. Empty or whitespace-only text is
// a ValidationError; a missing template or commenter is NotFound.
func (s *EngagementService) AddComment(ctx context.Context, templateID, userID, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("comment", "comment cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return nil, apperror.ValidationFailed("comment",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}
	if err := s.checkEngage(ctx, templateID, userID); err != nil {
		return nil, err
	}

	author, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	c := &model.Comment{TemplateID: templateID, UserID: userID, Comment: text}
	if err := s.engagement.AddComment(ctx, c); err != nil {
		return nil, s.wrap(err, "adding comment", templateID)
	}
	c.Author = author.Public()

	s.logger.Info("comment added",
		slog.String("id", c.ID),
		slog.String("template_id", templateID),
		slog.String("user_id", userID),
	)
	return c, nil
}

// DeleteComment removes a comment when the requester wrote it or owns the
// template it is on. The owner is read from storage, never from the request.
func (s *EngagementService) DeleteComment(ctx context.Context, commentID, requesterID string) error {
	if strings.TrimSpace(requesterID) == "" {
		return apperror.Unauthorized("sign in to delete comments")
	}

	c, err := s.engagement.GetComment(ctx, commentID)
	if err != nil {
		return err
	}

	if c.UserID != requesterID {
		t, err := s.templates.GetTemplate(ctx, c.TemplateID)
		if err != nil {
			return err
		}
		if t.UserID != requesterID {
			return apperror.Forbidden("only the comment's author or the template's owner can delete it")
		}
	}

	if err := s.engagement.DeleteComment(ctx, commentID); err != nil {
		return s.wrap(err, "deleting comment", c.TemplateID)
	}
	s.logger.Info("comment deleted",
		slog.String("id", commentID),
		slog.String("template_id", c.TemplateID),
		slog.String("by", requesterID),
	)
	return nil
}

// ListComments returns the template's comments newest first, each with its
// author's public profile. Authors are loaded with one batched lookup.
func (s *EngagementService) ListComments(ctx context.Context, templateID, viewerID string) ([]model.Comment, error) {
	t, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := s.sharing.Authorize(ctx, t, viewerID); err != nil {
		return nil, err
	}

	comments, err := s.engagement.ListComments(ctx, templateID)
	if err != nil {
		return nil, s.wrap(err, "listing comments", templateID)
	}

	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.UserID)
	}
	authors, err := s.profiles.GetProfiles(ctx, distinct(ids))
	if err != nil {
		return nil, s.wrap(err, "loading comment authors", templateID)
	}
	for i := range comments {
		comments[i].Author = authors[comments[i].UserID].Public()
	}
	return comments, nil
}

// checkEngage verifies the actor is signed in and can see the template.
func (s *EngagementService) checkEngage(ctx context.Context, templateID, userID string) error {
	if strings.TrimSpace(templateID) == "" {
		return apperror.ValidationFailed("template_id", "template_id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return apperror.ValidationFailed("user_id", "user_id is required")
	}
	t, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	return s.sharing.Authorize(ctx, t, userID)
}

func (s *EngagementService) wrap(err error, action, templateID string) error {
	if isClientError(err) {
		return err
	}
	s.logger.Error("engagement write failed",
		slog.String("action", action),
		slog.String("template_id", templateID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%s: %w", action, err)
}
