package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

const (
	DefaultFeedPageSize = 12
	MaxFeedPageSize     = 50
	MaxFeedPage         = 10000
	MaxSearchLength     = 100
)

// FeedQuery selects one page of the community feed. Page is zero-based.
// ViewerID is empty for anonymous viewers.
type FeedQuery struct {
	ViewerID string
	Page     int
	PageSize int
	Filter   model.FeedFilter
	Search   string
}

// FeedService is the Community Feed Builder.
type FeedService struct {
	templates  repository.TemplateRepository
	engagement repository.EngagementRepository
	profiles   repository.ProfileRepository
	logger     *slog.Logger
}

func NewFeedService(
	templates repository.TemplateRepository,
	engagement repository.EngagementRepository,
	profiles repository.ProfileRepository,
	logger *slog.Logger,
) *FeedService {
	return &FeedService{
		templates:  templates,
		engagement: engagement,
		profiles:   profiles,
		logger:     logger,
	}
}

// List assembles one feed page.
//
// One query selects the page (filter, search and pagination all run in the
// store). The page's blocks, owner profiles, comment counts and the viewer's
// own like/save state are then loaded with one batched query each, issued
// concurrently. No query is issued per template.
//
// Liked and Saved are set only for a signed-in viewer and only ever reflect
// that viewer's rows.
func (s *FeedService) List(ctx context.Context, q FeedQuery) ([]model.FeedEntry, error) {
	if q.Filter == "" {
		q.Filter = model.FeedAll
	}
	switch q.Filter {
	case model.FeedAll:
	case model.FeedLiked, model.FeedSaved:
		if q.ViewerID == "" {
			return nil, apperror.Unauthorized("sign in to see your liked and saved templates")
		}
	default:
		return nil, apperror.ValidationFailed("filter", "filter must be all, liked or saved")
	}

	if q.Page < 0 {
		q.Page = 0
	}
	if q.Page > MaxFeedPage {
		return nil, apperror.ValidationFailed("page",
			fmt.Sprintf("page must be %d or less", MaxFeedPage))
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultFeedPageSize
	}
	if q.PageSize > MaxFeedPageSize {
		q.PageSize = MaxFeedPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	if len(q.Search) > MaxSearchLength {
		return nil, apperror.ValidationFailed("q",
			fmt.Sprintf("search text must be %d characters or less", MaxSearchLength))
	}

	templates, err := s.templates.ListTemplates(ctx, repository.TemplateQuery{
		ListOptions: repository.ListOptions{Limit: q.PageSize, Offset: q.Page * q.PageSize},
		Filter:      q.Filter,
		ViewerID:    q.ViewerID,
		Search:      q.Search,
	})
	if err != nil {
		s.logger.Error("failed to list feed templates", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing feed: %w", err)
	}
	if len(templates) == 0 {
		return []model.FeedEntry{}, nil
	}

	ids := make([]string, len(templates))
	ownerIDs := make([]string, len(templates))
	for i, t := range templates {
		ids[i] = t.ID
		ownerIDs[i] = t.UserID
	}

	var (
		blocks       map[string][]model.CodeBlock
		owners       map[string]*model.Profile
		counts       map[string]int
		liked, saved map[string]bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		blocks, err = s.templates.ListBlocks(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		owners, err = s.profiles.GetProfiles(gctx, distinct(ownerIDs))
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.engagement.CountComments(gctx, ids)
		return err
	})
	if q.ViewerID != "" {
		g.Go(func() error {
			var err error
			liked, saved, err = s.engagement.ViewerState(gctx, q.ViewerID, ids)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to assemble feed page", slog.String("error", err.Error()))
		return nil, fmt.Errorf("assembling feed: %w", err)
	}

	entries := make([]model.FeedEntry, 0, len(templates))
	for _, t := range templates {
		t.Blocks = blocks[t.ID]
		if t.Blocks == nil {
			t.Blocks = []model.CodeBlock{}
		}
		entry := model.FeedEntry{
			Template:     t,
			Owner:        owners[t.UserID].Public(),
			CommentCount: counts[t.ID],
		}
		if q.ViewerID != "" {
			l, sv := liked[t.ID], saved[t.ID]
			entry.Liked = &l
			entry.Saved = &sv
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
