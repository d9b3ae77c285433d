package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository/sqlstore"
)

// testEnv wires every service over one in-memory SQLite store, so tests
// exercise real transactions and cascades instead of fakes.
//
// Tests in this package do not call t.Parallel: goose keeps its dialect and
// base FS in package-level state.
type testEnv struct {
	db         *sqlstore.DB
	profiles   *ProfileService
	sharing    *SharingService
	templates  *TemplateService
	engagement *EngagementService
	feed       *FeedService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlstore.Open(sqlstore.DialectSQLite, ":memory:", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := discardLogger()
	sharing := NewSharingService(db, db, db, logger)
	return &testEnv{
		db:         db,
		profiles:   NewProfileService(db, logger),
		sharing:    sharing,
		templates:  NewTemplateService(db, sharing, logger),
		engagement: NewEngagementService(db, db, db, sharing, logger),
		feed:       NewFeedService(db, db, db, logger),
	}
}

func (e *testEnv) user(t *testing.T, username string) *model.Profile {
	t.Helper()
	p := &model.Profile{Username: username, Email: username + "@example.com"}
	require.NoError(t, e.db.CreateProfile(context.Background(), p))
	return p
}

func templateInput(title string, visibility model.Visibility, sharedWith ...string) TemplateInput {
	return TemplateInput{
		Title:      title,
		Subtitle:   "about " + title,
		CoverImage: "http://x/img.png",
		Visibility: visibility,
		Blocks:     []model.CodeBlock{{Code: "print(1)"}},
		SharedWith: sharedWith,
	}
}

func (e *testEnv) template(t *testing.T, owner *model.Profile, title string, visibility model.Visibility, sharedWith ...string) *model.Template {
	t.Helper()
	tpl, err := e.templates.Create(context.Background(), owner.ID, templateInput(title, visibility, sharedWith...))
	require.NoError(t, err)
	return tpl
}

func templateIDs(templates []model.Template) []string {
	ids := make([]string, 0, len(templates))
	for _, t := range templates {
		ids = append(ids, t.ID)
	}
	return ids
}

func sharedIDs(templates []model.SharedTemplate) []string {
	ids := make([]string, 0, len(templates))
	for _, t := range templates {
		ids = append(ids, t.ID)
	}
	return ids
}

func feedIDs(entries []model.FeedEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}
