package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
)

func TestIsVisible(t *testing.T) {
	owner := &model.Profile{ID: "o", Username: "owner"}
	bob := &model.Profile{ID: "b", Username: "bob"}
	carol := &model.Profile{ID: "c", Username: "carol"}

	public := &model.Template{UserID: "o", Visibility: model.VisibilityPublic}
	private := &model.Template{UserID: "o", Visibility: model.VisibilityPrivate}

	tests := []struct {
		name   string
		t      *model.Template
		viewer *model.Profile
		grants []string
		want   bool
	}{
		{"owner sees private", private, owner, nil, true},
		{"owner sees public", public, owner, nil, true},
		{"anonymous sees public", public, nil, nil, true},
		{"anonymous never sees private", private, nil, []string{"bob"}, false},
		{"grantee sees private", private, bob, []string{"bob"}, true},
		{"non-grantee does not", private, carol, []string{"bob"}, false},
		{"grants on public are irrelevant", public, carol, []string{"bob"}, true},
		{"grant match is exact", private, bob, []string{"Bob"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isVisible(tt.t, tt.viewer, tt.grants))
		})
	}
}

func TestResolveGrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	env.user(t, "alice")
	env.user(t, "bob")

	grants, err := env.sharing.ResolveGrants(ctx, owner.ID, model.VisibilityPrivate,
		[]string{"@alice", " bob ", "", "alice", "bob@example.com", "owner"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, grants)

	grants, err = env.sharing.ResolveGrants(ctx, owner.ID, model.VisibilityPublic, []string{"nobody"})
	require.NoError(t, err)
	assert.Empty(t, grants, "public templates never carry grants")

	_, err = env.sharing.ResolveGrants(ctx, owner.ID, model.VisibilityPrivate, []string{"nobody@example.com"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestReplaceShares(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	alice := env.user(t, "alice")
	env.user(t, "bob")

	tpl := env.template(t, owner, "Foo", model.VisibilityPrivate, "alice")

	grantees, err := env.sharing.ReplaceShares(ctx, tpl.ID, owner.ID, []string{"bob"})
	require.NoError(t, err)
	require.Len(t, grantees, 1)
	assert.Equal(t, "bob", grantees[0].Username)

	ok, err := env.sharing.IsVisibleTo(ctx, tpl, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.sharing.ReplaceShares(ctx, tpl.ID, alice.ID, []string{"alice"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = env.sharing.ReplaceShares(ctx, "missing", owner.ID, nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestReplaceShares_PublicIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	env.user(t, "bob")

	tpl := env.template(t, owner, "Foo", model.VisibilityPublic)
	grantees, err := env.sharing.ReplaceShares(ctx, tpl.ID, owner.ID, []string{"bob"})
	require.NoError(t, err)
	assert.Empty(t, grantees)

	sharedBy, err := env.sharing.SharedByMe(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, sharedBy)
}

func TestSharing_EmailEntryResolvesToUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	bob := env.user(t, "bob")

	tpl := env.template(t, owner, "Foo", model.VisibilityPrivate, "BOB@example.com")

	ok, err := env.sharing.IsVisibleTo(ctx, tpl, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	grants, err := env.db.ListGrants(ctx, []string{tpl.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, grants[tpl.ID])
}

func TestSharing_GrantFollowsRename(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	bob := env.user(t, "bob")

	tpl := env.template(t, owner, "Foo", model.VisibilityPrivate, "bob")
	_, err := env.profiles.Update(ctx, bob.ID, "robert", "")
	require.NoError(t, err)

	sharedWith, err := env.sharing.SharedWithMe(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{tpl.ID}, sharedIDs(sharedWith))

	ok, err := env.sharing.IsVisibleTo(ctx, tpl, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSharedWithMe_UnknownViewer(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.sharing.SharedWithMe(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
