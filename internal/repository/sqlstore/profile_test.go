package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
)

func TestProfileCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := createTestProfile(t, db, "alice")
	if p.ID == "" {
		t.Fatal("CreateProfile() did not set ID")
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreateProfile() did not set CreatedAt")
	}

	got, err := db.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Nil(t, got.GitHubID)

	byName, err := db.GetProfileByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	byEmail, err := db.GetProfileByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byEmail.ID)
}

func TestProfileGet_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetProfile(ctx, "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetProfile() error = %v, want ErrNotFound", err)
	}
	_, err = db.GetProfileByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.GetProfileByEmail(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestProfileUsernameIsCaseSensitive(t *testing.T) {
	db := newTestDB(t)

	createTestProfile(t, db, "alice")
	createTestProfile(t, db, "Alice")

	_, err := db.GetProfileByUsername(context.Background(), "ALICE")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestProfileCreate_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	createTestProfile(t, db, "alice")

	err := db.CreateProfile(context.Background(), &model.Profile{Username: "alice"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestGetProfiles_Batch(t *testing.T) {
	db := newTestDB(t)
	a := createTestProfile(t, db, "alice")
	b := createTestProfile(t, db, "bob")

	got, err := db.GetProfiles(context.Background(), []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "bob", got[b.ID].Username)

	byName, err := db.GetProfilesByUsername(context.Background(), []string{"alice", "nobody"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, a.ID, byName["alice"].ID)

	empty, err := db.GetProfiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpsertGitHubProfile_NewThenExisting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ghID := int64(4242)

	first := &model.Profile{Username: "octocat", Email: "old@example.com", GitHubID: &ghID}
	require.NoError(t, db.UpsertGitHubProfile(ctx, first))
	require.NotEmpty(t, first.ID)

	// The user renames themselves here; the next sign-in must not undo it.
	first.Username = "cat"
	require.NoError(t, db.UpdateProfile(ctx, first))

	again := &model.Profile{Username: "octocat", Email: "new@example.com", GitHubID: &ghID}
	require.NoError(t, db.UpsertGitHubProfile(ctx, again))

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "cat", again.Username)
	assert.Equal(t, "new@example.com", again.Email)
	assert.Equal(t, first.CreatedAt.Unix(), again.CreatedAt.Unix())
}

func TestUpsertGitHubProfile_UsernameTaken(t *testing.T) {
	db := newTestDB(t)
	createTestProfile(t, db, "octocat")
	ghID := int64(7)

	err := db.UpsertGitHubProfile(context.Background(), &model.Profile{Username: "octocat", GitHubID: &ghID})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestUpdateProfile_Conflict(t *testing.T) {
	db := newTestDB(t)
	createTestProfile(t, db, "alice")
	bob := createTestProfile(t, db, "bob")

	bob.Username = "alice"
	err := db.UpdateProfile(context.Background(), bob)
	require.ErrorIs(t, err, apperror.ErrConflict)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "username", appErr.Field)
}

func TestUpdateProfile_NotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.UpdateProfile(context.Background(), &model.Profile{ID: "ghost", Username: "ghost"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateProfile_RenameCarriesGrants(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "owner")
	bob := createTestProfile(t, db, "bob")
	tpl := createTestTemplate(t, db, owner, "secret", model.VisibilityPrivate, "bob")

	bob.Username = "robert"
	require.NoError(t, db.UpdateProfile(ctx, bob))

	ok, err := db.HasGrant(ctx, tpl.ID, "robert")
	require.NoError(t, err)
	assert.True(t, ok, "grant should follow the rename")

	ok, err = db.HasGrant(ctx, tpl.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchProfiles_Prefix(t *testing.T) {
	db := newTestDB(t)
	createTestProfile(t, db, "alice")
	createTestProfile(t, db, "Alicia")
	createTestProfile(t, db, "bob")
	createTestProfile(t, db, "mal_ice")

	got, err := db.SearchProfiles(context.Background(), "ali", 10)
	require.NoError(t, err)

	names := make([]string, 0, len(got))
	for _, p := range got {
		names = append(names, p.Username)
	}
	assert.ElementsMatch(t, []string{"alice", "Alicia"}, names)

	got, err = db.SearchProfiles(context.Background(), "_", 10)
	require.NoError(t, err)
	assert.Empty(t, got, "underscore must match literally, not as a wildcard")
}

func TestSearchProfiles_FoldsNonASCII(t *testing.T) {
	db := newTestDB(t)
	createTestProfile(t, db, "Émile")

	got, err := db.SearchProfiles(context.Background(), "émi", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Émile", got[0].Username)
}
