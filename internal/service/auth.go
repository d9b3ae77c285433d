package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/auth"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

// usernameAttempts bounds how many suffixed candidates SignIn tries when the
// provider login is already taken here.
const usernameAttempts = 5

// AuthService turns a completed provider sign-in into a profile and a session.
//
//	AuthHandler (HTTP) → AuthService → ProfileRepository
//	                               ↘ TokenService (JWT)
type AuthService struct {
	profiles repository.ProfileRepository
	tokens   *auth.TokenService
	logger   *slog.Logger
}

func NewAuthService(profiles repository.ProfileRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		profiles: profiles,
		tokens:   tokens,
		logger:   logger,
	}
}

// AuthResult bundles the profile and its session token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	Profile *model.Profile
	Token   string
}

// SignIn creates the profile on first sign-in and refreshes it afterwards.
// The first username is the provider login; if someone here already holds it,
// a short random suffix is appended and the insert retried.
func (s *AuthService) SignIn(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	base := usernameFromLogin(ghUser.Login)
	candidate := base

	var p *model.Profile
	for attempt := 0; ; attempt++ {
		githubID := ghUser.ID
		p = &model.Profile{
			Username: candidate,
			Email:    strings.ToLower(strings.TrimSpace(ghUser.Email)),
			Pic:      ghUser.AvatarURL,
			GitHubID: &githubID,
		}
		err := s.profiles.UpsertGitHubProfile(ctx, p)
		if err == nil {
			break
		}
		if !errors.Is(err, apperror.ErrConflict) || attempt+1 >= usernameAttempts {
			return nil, fmt.Errorf("service/auth: upserting profile (githubID=%d): %w", ghUser.ID, err)
		}
		candidate = withSuffix(base, uuid.NewString()[:6])
	}

	s.logger.Info("profile signed in via GitHub",
		slog.String("profileID", p.ID),
		slog.String("username", p.Username),
	)

	token, err := s.tokens.Generate(p.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", p.ID, err)
	}
	return &AuthResult{Profile: p, Token: token}, nil
}

// usernameFromLogin maps a provider login onto the local username rules.
func usernameFromLogin(login string) string {
	var b strings.Builder
	for _, r := range login {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := b.String()
	if len(name) > MaxUsernameLength {
		name = name[:MaxUsernameLength]
	}
	for len(name) < MinUsernameLength {
		name += "_"
	}
	return name
}

func withSuffix(base, suffix string) string {
	if len(base)+1+len(suffix) > MaxUsernameLength {
		base = base[:MaxUsernameLength-1-len(suffix)]
	}
	return base + "-" + suffix
}
