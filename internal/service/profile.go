package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MaxPicURLLength   = 2048
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ProfileService is the Profile Directory: it maps an identity to the public
// username and avatar shown next to that identity's content.
type ProfileService struct {
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, logger: logger}
}

// Get returns the caller's own profile, email included.
func (s *ProfileService) Get(ctx context.Context, id string) (*model.Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("user_id", "user_id is required")
	}
	return s.profiles.GetProfile(ctx, id)
}

// GetPublic looks a profile up by username and strips private fields.
func (s *ProfileService) GetPublic(ctx context.Context, username string) (*model.PublicProfile, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	p, err := s.profiles.GetProfileByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return p.Public(), nil
}

// Update changes username and avatar. Uniqueness is case-sensitive and is
// enforced by the store, so two concurrent renames to the same name cannot
// both succeed.
func (s *ProfileService) Update(ctx context.Context, id, username, pic string) (*model.Profile, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	pic = strings.TrimSpace(pic)

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if pic != "" {
		if err := validateHTTPURL("pic", pic, MaxPicURLLength); err != nil {
			return nil, err
		}
	}

	p, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := p.Username
	p.Username = username
	p.Pic = pic

	if err := s.profiles.UpdateProfile(ctx, p); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to update profile",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	if previous != username {
		s.logger.Info("username changed",
			slog.String("id", id),
			slog.String("from", previous),
			slog.String("to", username),
		)
	}
	return p, nil
}

// UsernameAvailable reports whether nobody holds username yet. An invalid
// username is reported as a validation error rather than "unavailable".
func (s *ProfileService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if err := ValidateUsername(username); err != nil {
		return false, err
	}
	_, err := s.profiles.GetProfileByUsername(ctx, username)
	if errors.Is(err, apperror.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// Search powers the share-with autocomplete.
func (s *ProfileService) Search(ctx context.Context, prefix string, limit int) ([]*model.PublicProfile, error) {
	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "@")
	if prefix == "" {
		return []*model.PublicProfile{}, nil
	}
	profiles, err := s.profiles.SearchProfiles(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("searching profiles: %w", err)
	}
	out := make([]*model.PublicProfile, 0, len(profiles))
	for i := range profiles {
		out = append(out, profiles[i].Public())
	}
	return out, nil
}

// ValidateUsername checks length and character set.
func ValidateUsername(username string) error {
	if username == "" {
		return apperror.ValidationFailed("username", "username is required")
	}
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return apperror.ValidationFailed("username",
			"username may only contain letters, digits, '_', '.' and '-'")
	}
	return nil
}

func validateHTTPURL(field, raw string, maxLen int) error {
	if len(raw) > maxLen {
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be %d characters or less", field, maxLen))
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be an http(s) URL", field))
	}
	return nil
}
