package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

func TestCreateTemplate(t *testing.T) {
	db := newTestDB(t)
	owner := createTestProfile(t, db, "alice")

	tpl := createTestTemplate(t, db, owner, "hello", model.VisibilityPublic)

	if tpl.ID == "" {
		t.Fatal("CreateTemplate() did not set ID")
	}
	assert.Equal(t, 0, tpl.LikeCount)
	require.Len(t, tpl.Blocks, 2)
	for i, b := range tpl.Blocks {
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, tpl.ID, b.TemplateID)
		assert.Equal(t, i, b.Position)
	}
}

func TestCreateTemplate_UnknownOwner(t *testing.T) {
	db := newTestDB(t)
	err := db.CreateTemplate(context.Background(), &model.Template{
		UserID: "ghost", Title: "x", CoverImage: "https://x", Visibility: model.VisibilityPublic,
	}, nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateTemplate_BadGrantRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "alice")

	tpl := &model.Template{
		UserID: owner.ID, Title: "secret", CoverImage: "https://x", Visibility: model.VisibilityPrivate,
		Blocks: []model.CodeBlock{{Code: "x"}},
	}
	err := db.CreateTemplate(ctx, tpl, []string{"nobody"})
	require.ErrorIs(t, err, apperror.ErrValidation)

	// Nothing of the failed create may be visible.
	_, err = db.GetTemplate(ctx, tpl.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	mine, err := db.ListPrivateUnshared(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestCreateTemplate_PublicStoresNoGrants(t *testing.T) {
	db := newTestDB(t)
	owner := createTestProfile(t, db, "alice")
	createTestProfile(t, db, "bob")

	tpl := createTestTemplate(t, db, owner, "open", model.VisibilityPublic, "bob")

	grants, err := db.ListGrants(context.Background(), []string{tpl.ID})
	require.NoError(t, err)
	assert.Empty(t, grants[tpl.ID])
}

func TestGetTemplate_WithBlocksInOrder(t *testing.T) {
	db := newTestDB(t)
	owner := createTestProfile(t, db, "alice")
	tpl := createTestTemplate(t, db, owner, "hello", model.VisibilityPrivate)

	got, err := db.GetTemplate(context.Background(), tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)
	assert.Equal(t, model.VisibilityPrivate, got.Visibility)
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "print(1)", got.Blocks[0].Code)
	assert.Equal(t, "print(2)", got.Blocks[1].Code)
	assert.Nil(t, got.Blocks[0].CorrectedCode)
}

func TestGetTemplate_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetTemplate(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetTemplate() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateTemplate_ReplacesBlocksAndGrants(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "alice")
	createTestProfile(t, db, "bob")
	createTestProfile(t, db, "carol")
	tpl := createTestTemplate(t, db, owner, "v1", model.VisibilityPrivate, "bob")

	_, err := db.ToggleLike(ctx, tpl.ID, owner.ID)
	require.NoError(t, err)

	update := &model.Template{
		ID:         tpl.ID,
		UserID:     owner.ID,
		Title:      "v2",
		CoverImage: tpl.CoverImage,
		Visibility: model.VisibilityPrivate,
		LikeCount:  999, // ignored
		Blocks:     []model.CodeBlock{{Description: "only", Code: "print(3)"}},
	}
	require.NoError(t, db.UpdateTemplate(ctx, update, []string{"carol"}))
	assert.Equal(t, 1, update.LikeCount)
	assert.Equal(t, tpl.CreatedAt.Unix(), update.CreatedAt.Unix())

	got, err := db.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	assert.Equal(t, 1, got.LikeCount)
	require.Len(t, got.Blocks, 1)
	assert.Equal(t, "print(3)", got.Blocks[0].Code)

	grants, err := db.ListGrants(ctx, []string{tpl.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, grants[tpl.ID])
}

func TestUpdateTemplate_ToPublicClearsGrants(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "alice")
	createTestProfile(t, db, "bob")
	tpl := createTestTemplate(t, db, owner, "secret", model.VisibilityPrivate, "bob")

	tpl.Visibility = model.VisibilityPublic
	require.NoError(t, db.UpdateTemplate(ctx, tpl, []string{"bob"}))

	ok, err := db.HasGrant(ctx, tpl.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateTemplate_NotOwner(t *testing.T) {
	db := newTestDB(t)
	owner := createTestProfile(t, db, "alice")
	other := createTestProfile(t, db, "mallory")
	tpl := createTestTemplate(t, db, owner, "hello", model.VisibilityPublic)

	tpl.UserID = other.ID
	tpl.Title = "pwned"
	err := db.UpdateTemplate(context.Background(), tpl, nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	got, err := db.GetTemplate(context.Background(), tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)
	assert.Equal(t, owner.ID, got.UserID)
}

func TestDeleteTemplate_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "alice")
	bob := createTestProfile(t, db, "bob")
	tpl := createTestTemplate(t, db, owner, "secret", model.VisibilityPrivate, "bob")

	_, err := db.ToggleLike(ctx, tpl.ID, bob.ID)
	require.NoError(t, err)
	_, err = db.ToggleSave(ctx, tpl.ID, bob.ID)
	require.NoError(t, err)
	require.NoError(t, db.AddComment(ctx, &model.Comment{TemplateID: tpl.ID, UserID: bob.ID, Comment: "nice"}))

	require.NoError(t, db.DeleteTemplate(ctx, tpl.ID, owner.ID))

	_, err = db.GetTemplate(ctx, tpl.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	blocks, err := db.ListBlocks(ctx, []string{tpl.ID})
	require.NoError(t, err)
	assert.Empty(t, blocks)

	ok, err := db.HasGrant(ctx, tpl.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	comments, err := db.ListComments(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	liked, saved, err := db.ViewerState(ctx, bob.ID, []string{tpl.ID})
	require.NoError(t, err)
	assert.Empty(t, liked)
	assert.Empty(t, saved)
}

func TestDeleteTemplate_IdempotentAndOwnerOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "alice")
	other := createTestProfile(t, db, "mallory")
	tpl := createTestTemplate(t, db, owner, "hello", model.VisibilityPublic)

	err := db.DeleteTemplate(ctx, tpl.ID, other.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	require.NoError(t, db.DeleteTemplate(ctx, tpl.ID, owner.ID))
	require.NoError(t, db.DeleteTemplate(ctx, tpl.ID, owner.ID), "second delete is a no-op")
}

func TestListTemplates_AllIsPublicNewestFirst(t *testing.T) {
	db := newTestDB(t)
	owner := createTestProfile(t, db, "alice")
	older := createTestTemplate(t, db, owner, "older", model.VisibilityPublic)
	createTestTemplate(t, db, owner, "hidden", model.VisibilityPrivate)
	newer := createTestTemplate(t, db, owner, "newer", model.VisibilityPublic)

	got, err := db.ListTemplates(context.Background(), repository.TemplateQuery{
		ListOptions: repository.ListOptions{Limit: 10},
		Filter:      model.FeedAll,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)
}

func TestListTemplates_Pagination(t *testing.T) {
	db := newTestDB(t)
	owner := createTestProfile(t, db, "alice")
	for i := 0; i < 5; i++ {
		createTestTemplate(t, db, owner, fmt.Sprintf("t%d", i), model.VisibilityPublic)
	}

	seen := map[string]bool{}
	for page := 0; page < 3; page++ {
		got, err := db.ListTemplates(context.Background(), repository.TemplateQuery{
			ListOptions: repository.ListOptions{Limit: 2, Offset: page * 2},
		})
		require.NoError(t, err)
		for _, tpl := range got {
			assert.False(t, seen[tpl.ID], "template %s appeared twice", tpl.ID)
			seen[tpl.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestListTemplates_Search(t *testing.T) {
	db := newTestDB(t)
	alice := createTestProfile(t, db, "alice")
	gopher := createTestProfile(t, db, "gopher")
	createTestTemplate(t, db, alice, "Python tricks", model.VisibilityPublic)
	createTestTemplate(t, db, alice, "Rust notes", model.VisibilityPublic)
	createTestTemplate(t, db, gopher, "misc", model.VisibilityPublic)

	search := func(q string) []string {
		got, err := db.ListTemplates(context.Background(), repository.TemplateQuery{
			ListOptions: repository.ListOptions{Limit: 10},
			Search:      q,
		})
		require.NoError(t, err)
		titles := make([]string, 0, len(got))
		for _, tpl := range got {
			titles = append(titles, tpl.Title)
		}
		return titles
	}

	assert.Equal(t, []string{"Python tricks"}, search("PYTHON"))
	assert.Equal(t, []string{"misc"}, search("goph"), "owner username matches")
	assert.ElementsMatch(t, []string{"Python tricks", "Rust notes"}, search("ALICE"))
	assert.Len(t, search("subtitle of"), 3)
	assert.Empty(t, search("%"))
}

func TestListTemplates_SearchFoldsNonASCII(t *testing.T) {
	db := newTestDB(t)
	alice := createTestProfile(t, db, "alice")
	createTestTemplate(t, db, alice, "Élan Vital", model.VisibilityPublic)
	createTestTemplate(t, db, alice, "Straße bauen", model.VisibilityPublic)

	for _, q := range []string{"Élan", "élan", "ÉLAN", "STRAßE"} {
		got, err := db.ListTemplates(context.Background(), repository.TemplateQuery{
			ListOptions: repository.ListOptions{Limit: 10},
			Search:      q,
		})
		require.NoError(t, err)
		assert.Len(t, got, 1, q)
	}
}

func TestListTemplates_LikedAndSaved(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "alice")
	viewer := createTestProfile(t, db, "bob")
	a := createTestTemplate(t, db, owner, "a", model.VisibilityPublic)
	b := createTestTemplate(t, db, owner, "b", model.VisibilityPublic)
	createTestTemplate(t, db, owner, "c", model.VisibilityPublic)

	_, err := db.ToggleLike(ctx, a.ID, viewer.ID)
	require.NoError(t, err)
	_, err = db.ToggleSave(ctx, b.ID, viewer.ID)
	require.NoError(t, err)

	liked, err := db.ListTemplates(ctx, repository.TemplateQuery{
		ListOptions: repository.ListOptions{Limit: 10}, Filter: model.FeedLiked, ViewerID: viewer.ID,
	})
	require.NoError(t, err)
	require.Len(t, liked, 1)
	assert.Equal(t, a.ID, liked[0].ID)

	saved, err := db.ListTemplates(ctx, repository.TemplateQuery{
		ListOptions: repository.ListOptions{Limit: 10}, Filter: model.FeedSaved, ViewerID: viewer.ID,
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, b.ID, saved[0].ID)
}

func TestListPrivateUnshared(t *testing.T) {
	db := newTestDB(t)
	owner := createTestProfile(t, db, "alice")
	createTestProfile(t, db, "bob")
	mine := createTestTemplate(t, db, owner, "mine", model.VisibilityPrivate)
	createTestTemplate(t, db, owner, "shared", model.VisibilityPrivate, "bob")
	createTestTemplate(t, db, owner, "public", model.VisibilityPublic)

	got, err := db.ListPrivateUnshared(context.Background(), owner.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)
	assert.Len(t, got[0].Blocks, 2)
}

func TestSetCorrectedCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "alice")
	other := createTestProfile(t, db, "bob")
	tpl := createTestTemplate(t, db, owner, "hello", model.VisibilityPublic)

	require.NoError(t, db.SetCorrectedCode(ctx, tpl.ID, owner.ID, 1, "print('two')"))

	got, err := db.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Blocks[1].CorrectedCode)
	assert.Equal(t, "print('two')", *got.Blocks[1].CorrectedCode)

	assert.ErrorIs(t, db.SetCorrectedCode(ctx, tpl.ID, other.ID, 1, "x"), apperror.ErrNotFound)
	assert.ErrorIs(t, db.SetCorrectedCode(ctx, tpl.ID, owner.ID, 7, "x"), apperror.ErrNotFound)
}
