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

const MaxShareEntries = 100

// SharingService is the Sharing Resolver. Grants are stored by username; an
// entry that looks like an email is resolved to its owner's username when the
// grant is written, so reads only ever compare usernames.
type SharingService struct {
	templates repository.TemplateRepository
	shares    repository.ShareRepository
	profiles  repository.ProfileRepository
	logger    *slog.Logger
}

func NewSharingService(
	templates repository.TemplateRepository,
	shares repository.ShareRepository,
	profiles repository.ProfileRepository,
	logger *slog.Logger,
) *SharingService {
	return &SharingService{
		templates: templates,
		shares:    shares,
		profiles:  profiles,
		logger:    logger,
	}
}

// isVisible decides access from already-loaded data. viewer is nil for
// anonymous requests.
//
// The owner always sees the template. Everyone sees a public template and
// grants on it are ignored. A private template is visible to a non-owner
// only through a grant naming the viewer's username.
func isVisible(t *model.Template, viewer *model.Profile, grants []string) bool {
	if viewer != nil && viewer.ID == t.UserID {
		return true
	}
	if t.Visibility == model.VisibilityPublic {
		return true
	}
	if viewer == nil {
		return false
	}
	for _, g := range grants {
		if g == viewer.Username {
			return true
		}
	}
	return false
}

// IsVisibleTo reports whether viewerID may read t. An empty viewerID is an
// anonymous viewer.
func (s *SharingService) IsVisibleTo(ctx context.Context, t *model.Template, viewerID string) (bool, error) {
	if viewerID == t.UserID || t.Visibility == model.VisibilityPublic {
		return true, nil
	}
	if viewerID == "" {
		return false, nil
	}

	viewer, err := s.profiles.GetProfile(ctx, viewerID)
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading viewer profile: %w", err)
	}

	ok, err := s.shares.HasGrant(ctx, t.ID, viewer.Username)
	if err != nil {
		return false, fmt.Errorf("checking grant: %w", err)
	}
	return isVisible(t, viewer, grantList(ok, viewer.Username)), nil
}

func grantList(granted bool, username string) []string {
	if !granted {
		return nil
	}
	return []string{username}
}

// Authorize turns a failed visibility check into ForbiddenError.
func (s *SharingService) Authorize(ctx context.Context, t *model.Template, viewerID string) error {
	ok, err := s.IsVisibleTo(ctx, t, viewerID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Forbidden("you do not have access to this template")
	}
	return nil
}

// ResolveGrants normalizes the share list supplied with a template write.
//
//   - public templates get no grants, whatever was supplied
//   - a leading "@" is dropped; blank entries are skipped
//   - entries containing "@" elsewhere are treated as emails and resolved
//   - every entry must name an existing profile (ValidationError otherwise)
//   - the owner and duplicates are dropped
func (s *SharingService) ResolveGrants(ctx context.Context, ownerID string, visibility model.Visibility, entries []string) ([]string, error) {
	if visibility != model.VisibilityPrivate {
		return []string{}, nil
	}
	if len(entries) > MaxShareEntries {
		return nil, apperror.ValidationFailed("shared_with",
			fmt.Sprintf("a template can be shared with at most %d users", MaxShareEntries))
	}

	seen := make(map[string]bool, len(entries))
	grants := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimPrefix(strings.TrimSpace(entry), "@")
		if entry == "" {
			continue
		}

		var (
			p   *model.Profile
			err error
		)
		if strings.Contains(entry, "@") {
			p, err = s.profiles.GetProfileByEmail(ctx, strings.ToLower(entry))
		} else {
			p, err = s.profiles.GetProfileByUsername(ctx, entry)
		}
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("shared_with", fmt.Sprintf("no user found for %q", entry))
		}
		if err != nil {
			return nil, fmt.Errorf("resolving share entry: %w", err)
		}

		if p.ID == ownerID || seen[p.Username] {
			continue
		}
		seen[p.Username] = true
		grants = append(grants, p.Username)
	}
	return grants, nil
}

// ReplaceShares swaps the template's grant set without touching its content.
// It returns the resulting grantees.
func (s *SharingService) ReplaceShares(ctx context.Context, templateID, ownerID string, entries []string) ([]*model.PublicProfile, error) {
	t, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if t.UserID != ownerID {
		return nil, apperror.Forbidden("only the owner can change who a template is shared with")
	}

	grants, err := s.ResolveGrants(ctx, ownerID, t.Visibility, entries)
	if err != nil {
		return nil, err
	}
	if err := s.shares.ReplaceShares(ctx, templateID, ownerID, grants); err != nil {
		return nil, err
	}

	s.logger.Info("shares replaced",
		slog.String("template_id", templateID),
		slog.Int("grants", len(grants)),
	)
	return s.publicProfilesByUsername(ctx, grants)
}

// SharedWithMe lists the private templates granted to the viewer, each with
// its owner's public profile.
func (s *SharingService) SharedWithMe(ctx context.Context, viewerID string) ([]model.SharedTemplate, error) {
	viewer, err := s.profiles.GetProfile(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	templates, err := s.shares.ListSharedWith(ctx, viewer.Username)
	if err != nil {
		return nil, fmt.Errorf("listing templates shared with %s: %w", viewer.Username, err)
	}

	ownerIDs := make([]string, 0, len(templates))
	for _, t := range templates {
		ownerIDs = append(ownerIDs, t.UserID)
	}
	owners, err := s.profiles.GetProfiles(ctx, distinct(ownerIDs))
	if err != nil {
		return nil, fmt.Errorf("loading owners: %w", err)
	}

	out := make([]model.SharedTemplate, 0, len(templates))
	for _, t := range templates {
		out = append(out, model.SharedTemplate{Template: t, Owner: owners[t.UserID].Public()})
	}
	return out, nil
}

// SharedByMe lists the owner's private templates with at least one grant,
// each with the grantees' public profiles. A private template with no grants
// is "mine only" and does not appear here.
func (s *SharingService) SharedByMe(ctx context.Context, ownerID string) ([]model.SharedTemplate, error) {
	templates, err := s.shares.ListSharedBy(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing templates shared by %s: %w", ownerID, err)
	}

	ids := make([]string, 0, len(templates))
	for _, t := range templates {
		ids = append(ids, t.ID)
	}
	grants, err := s.shares.ListGrants(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading grants: %w", err)
	}

	var usernames []string
	for _, g := range grants {
		usernames = append(usernames, g...)
	}
	grantees, err := s.profiles.GetProfilesByUsername(ctx, distinct(usernames))
	if err != nil {
		return nil, fmt.Errorf("loading grantees: %w", err)
	}

	out := make([]model.SharedTemplate, 0, len(templates))
	for _, t := range templates {
		names := grants[t.ID]
		if len(names) == 0 {
			continue
		}
		shared := make([]*model.PublicProfile, 0, len(names))
		for _, name := range names {
			if p, ok := grantees[name]; ok {
				shared = append(shared, p.Public())
			}
		}
		out = append(out, model.SharedTemplate{Template: t, SharedWith: shared})
	}
	return out, nil
}

func (s *SharingService) publicProfilesByUsername(ctx context.Context, usernames []string) ([]*model.PublicProfile, error) {
	profiles, err := s.profiles.GetProfilesByUsername(ctx, usernames)
	if err != nil {
		return nil, fmt.Errorf("loading grantees: %w", err)
	}
	out := make([]*model.PublicProfile, 0, len(usernames))
	for _, name := range usernames {
		if p, ok := profiles[name]; ok {
			out = append(out, p.Public())
		}
	}
	return out, nil
}

// distinct returns ids without duplicates or blanks, in first-seen order.
func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
