package service

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
)

// An anonymous viewer sees public templates with no like/save annotation.
func TestFeed_AnonymousViewerSeesPublicWithoutState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	fan := env.user(t, "fan")

	public := env.template(t, owner, "Open", model.VisibilityPublic)
	env.template(t, owner, "Hidden", model.VisibilityPrivate)

	_, err := env.engagement.ToggleLike(ctx, public.ID, fan.ID)
	require.NoError(t, err)
	_, err = env.engagement.AddComment(ctx, public.ID, fan.ID, "neat")
	require.NoError(t, err)

	feed, err := env.feed.List(ctx, FeedQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{public.ID}, feedIDs(feed))

	entry := feed[0]
	assert.Nil(t, entry.Liked)
	assert.Nil(t, entry.Saved)
	assert.Equal(t, 1, entry.LikeCount)
	assert.Equal(t, 1, entry.CommentCount)
	assert.Equal(t, "owner", entry.Owner.Username)
	require.Len(t, entry.Blocks, 1)
	assert.Equal(t, "print(1)", entry.Blocks[0].Code)
}

func TestFeed_ViewerStateIsPerViewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	tpl := env.template(t, owner, "Open", model.VisibilityPublic)

	_, err := env.engagement.ToggleLike(ctx, tpl.ID, alice.ID)
	require.NoError(t, err)
	_, err = env.engagement.ToggleSave(ctx, tpl.ID, alice.ID)
	require.NoError(t, err)

	forAlice, err := env.feed.List(ctx, FeedQuery{ViewerID: alice.ID})
	require.NoError(t, err)
	require.Len(t, forAlice, 1)
	require.NotNil(t, forAlice[0].Liked)
	assert.True(t, *forAlice[0].Liked)
	assert.True(t, *forAlice[0].Saved)

	forBob, err := env.feed.List(ctx, FeedQuery{ViewerID: bob.ID})
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	require.NotNil(t, forBob[0].Liked)
	assert.False(t, *forBob[0].Liked)
	assert.False(t, *forBob[0].Saved)
	assert.Equal(t, 1, forBob[0].LikeCount)
}

func TestFeed_LikedAndSavedFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	fan := env.user(t, "fan")

	a := env.template(t, owner, "A", model.VisibilityPublic)
	b := env.template(t, owner, "B", model.VisibilityPublic)
	shared := env.template(t, owner, "Shared", model.VisibilityPrivate, "fan")

	_, err := env.engagement.ToggleLike(ctx, a.ID, fan.ID)
	require.NoError(t, err)
	_, err = env.engagement.ToggleSave(ctx, b.ID, fan.ID)
	require.NoError(t, err)
	_, err = env.engagement.ToggleSave(ctx, shared.ID, fan.ID)
	require.NoError(t, err)

	liked, err := env.feed.List(ctx, FeedQuery{ViewerID: fan.ID, Filter: model.FeedLiked})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, feedIDs(liked))

	saved, err := env.feed.List(ctx, FeedQuery{ViewerID: fan.ID, Filter: model.FeedSaved})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{b.ID, shared.ID}, feedIDs(saved))
	for _, e := range saved {
		assert.True(t, *e.Saved)
	}

	_, err = env.feed.List(ctx, FeedQuery{Filter: model.FeedLiked})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = env.feed.List(ctx, FeedQuery{Filter: "popular"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestFeed_SearchKeepsPageSize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gopher := env.user(t, "gopher")
	other := env.user(t, "other")

	for i := 0; i < 5; i++ {
		env.template(t, gopher, fmt.Sprintf("Concurrency %d", i), model.VisibilityPublic)
		env.template(t, other, fmt.Sprintf("Unrelated %d", i), model.VisibilityPublic)
	}

	page, err := env.feed.List(ctx, FeedQuery{Search: "GOPHER", PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, page, 3, "search runs before pagination")
	for _, e := range page {
		assert.Equal(t, "gopher", e.Owner.Username)
	}

	rest, err := env.feed.List(ctx, FeedQuery{Search: "concurrency", PageSize: 3, Page: 1})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.NotContains(t, feedIDs(page), rest[0].ID)

	none, err := env.feed.List(ctx, FeedQuery{Search: "%"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFeed_PageSizeBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	for i := 0; i < DefaultFeedPageSize+3; i++ {
		env.template(t, owner, fmt.Sprintf("T%d", i), model.VisibilityPublic)
	}

	feed, err := env.feed.List(ctx, FeedQuery{})
	require.NoError(t, err)
	assert.Len(t, feed, DefaultFeedPageSize)

	feed, err = env.feed.List(ctx, FeedQuery{Page: -4, PageSize: 1000})
	require.NoError(t, err)
	assert.Len(t, feed, DefaultFeedPageSize+3)

	feed, err = env.feed.List(ctx, FeedQuery{Page: 10})
	require.NoError(t, err)
	assert.NotNil(t, feed)
	assert.Empty(t, feed)
}

func TestFeed_RejectsPageBeyondLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.feed.List(ctx, FeedQuery{Page: MaxFeedPage})
	require.NoError(t, err)

	for _, page := range []int{MaxFeedPage + 1, math.MaxInt / 2, math.MaxInt} {
		_, err := env.feed.List(ctx, FeedQuery{Page: page, PageSize: MaxFeedPageSize})
		assert.ErrorIs(t, err, apperror.ErrValidation, "page %d", page)
	}
}
