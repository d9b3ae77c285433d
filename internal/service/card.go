package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
	"github.com/sakif/devxboard/internal/unfurl"
)

const (
	MaxCardURLLength         = 2048
	MaxCardTitleLength       = 300
	MaxCardDescriptionLength = 1000
)

// Unfurler reads a page's metadata. *unfurl.Client implements it.
type Unfurler interface {
	Fetch(ctx context.Context, rawURL string) (*unfurl.Metadata, error)
}

// CardInput is the user-supplied part of a card. Empty fields are filled from
// the page on create.
type CardInput struct {
	URL         string
	Title       string
	Description string
	Image       string
}

// CardService manages URL cards. Cards are private to their owner.
type CardService struct {
	cards    repository.CardRepository
	unfurler Unfurler
	logger   *slog.Logger
}

func NewCardService(cards repository.CardRepository, unfurler Unfurler, logger *slog.Logger) *CardService {
	return &CardService{cards: cards, unfurler: unfurler, logger: logger}
}

// Create stores a card. A failed unfurl is logged and the card is kept with
// whatever the caller supplied; an empty title falls back to the host name.
func (s *CardService) Create(ctx context.Context, ownerID string, in CardInput) (*model.Card, error) {
	c, err := cardFromInput(in)
	if err != nil {
		return nil, err
	}
	c.UserID = ownerID

	if c.Title == "" || c.Description == "" || c.Image == "" {
		if md, err := s.unfurler.Fetch(ctx, c.URL); err != nil {
			s.logger.Warn("unfurl failed", slog.String("url", c.URL), slog.String("error", err.Error()))
		} else {
			fillFromMetadata(c, md)
		}
	}
	if c.Title == "" {
		u, _ := url.Parse(c.URL)
		c.Title = strings.TrimPrefix(u.Hostname(), "www.")
	}
	truncateCard(c)

	if err := s.cards.CreateCard(ctx, c); err != nil {
		if isClientError(err) {
			return nil, err
		}
		s.logger.Error("failed to create card", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating card: %w", err)
	}
	return c, nil
}

// Preview unfurls a URL without storing anything.
func (s *CardService) Preview(ctx context.Context, rawURL string) (*unfurl.Metadata, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateHTTPURL("url", rawURL, MaxCardURLLength); err != nil {
		return nil, err
	}
	md, err := s.unfurler.Fetch(ctx, rawURL)
	if err != nil {
		s.logger.Warn("unfurl preview failed", slog.String("url", rawURL), slog.String("error", err.Error()))
		if errors.Is(err, unfurl.ErrBlockedAddress) {
			return nil, apperror.ValidationFailed("url", "URL must point to a public address")
		}
		return nil, apperror.Upstream("link preview", err)
	}
	return md, nil
}

func (s *CardService) List(ctx context.Context, ownerID string, limit, offset int) ([]model.Card, error) {
	cards, err := s.cards.ListCards(ctx, ownerID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list cards", slog.String("owner", ownerID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	return cards, nil
}

// Update replaces a card's fields. No unfurl happens on update.
func (s *CardService) Update(ctx context.Context, ownerID, id string, in CardInput) (*model.Card, error) {
	existing, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	c, err := cardFromInput(in)
	if err != nil {
		return nil, err
	}
	if c.Title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	truncateCard(c)

	existing.URL = c.URL
	existing.Title = c.Title
	existing.Description = c.Description
	existing.Image = c.Image
	if err := s.cards.UpdateCard(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *CardService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	return s.cards.DeleteCard(ctx, id)
}

func (s *CardService) owned(ctx context.Context, ownerID, id string) (*model.Card, error) {
	c, err := s.cards.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != ownerID {
		return nil, apperror.Forbidden("this card belongs to someone else")
	}
	return c, nil
}

func cardFromInput(in CardInput) (*model.Card, error) {
	c := &model.Card{
		URL:         strings.TrimSpace(in.URL),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Image:       strings.TrimSpace(in.Image),
	}
	if c.URL == "" {
		return nil, apperror.ValidationFailed("url", "url is required")
	}
	if err := validateHTTPURL("url", c.URL, MaxCardURLLength); err != nil {
		return nil, err
	}
	if c.Image != "" {
		if err := validateHTTPURL("image", c.Image, MaxCardURLLength); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func fillFromMetadata(c *model.Card, md *unfurl.Metadata) {
	if c.Title == "" {
		c.Title = md.Title
	}
	if c.Description == "" {
		c.Description = md.Description
	}
	if c.Image == "" && validateHTTPURL("image", md.Image, MaxCardURLLength) == nil {
		c.Image = md.Image
	}
	c.SiteName = md.SiteName
}

func truncateCard(c *model.Card) {
	c.Title = truncateRunes(c.Title, MaxCardTitleLength)
	c.Description = truncateRunes(c.Description, MaxCardDescriptionLength)
	c.SiteName = truncateRunes(c.SiteName, MaxCardTitleLength)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
