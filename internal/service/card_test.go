package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/unfurl"
)

// fakeUnfurler returns canned metadata and records what it was asked for.
type fakeUnfurler struct {
	md    *unfurl.Metadata
	err   error
	calls []string
}

func (f *fakeUnfurler) Fetch(_ context.Context, rawURL string) (*unfurl.Metadata, error) {
	f.calls = append(f.calls, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.md, nil
}

func newTestCardService(t *testing.T, u *fakeUnfurler) (*CardService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewCardService(env.db, u, discardLogger()), env
}

func TestCreateCard_FillsFromMetadata(t *testing.T) {
	u := &fakeUnfurler{md: &unfurl.Metadata{
		Title:       "Go Concurrency Patterns",
		Description: "Talk slides",
		Image:       "https://go.dev/img.png",
		SiteName:    "go.dev",
	}}
	svc, env := newTestCardService(t, u)
	owner := env.user(t, "owner")

	c, err := svc.Create(context.Background(), owner.ID, CardInput{URL: "https://go.dev/talks", Title: "Mine"})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://go.dev/talks"}, u.calls)
	assert.Equal(t, "Mine", c.Title, "caller's title wins")
	assert.Equal(t, "Talk slides", c.Description)
	assert.Equal(t, "https://go.dev/img.png", c.Image)
	assert.Equal(t, "go.dev", c.SiteName)

	cards, err := svc.List(context.Background(), owner.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, c.ID, cards[0].ID)
}

func TestCreateCard_UnfurlFailureFallsBackToHost(t *testing.T) {
	u := &fakeUnfurler{err: errors.New("connection refused")}
	svc, env := newTestCardService(t, u)
	owner := env.user(t, "owner")

	c, err := svc.Create(context.Background(), owner.ID, CardInput{URL: "https://www.example.com/page"})
	require.NoError(t, err)
	assert.Equal(t, "example.com", c.Title)
	assert.Empty(t, c.Description)
}

func TestCreateCard_CompleteInputSkipsUnfurl(t *testing.T) {
	u := &fakeUnfurler{err: errors.New("must not be called")}
	svc, env := newTestCardService(t, u)
	owner := env.user(t, "owner")

	_, err := svc.Create(context.Background(), owner.ID, CardInput{
		URL:         "https://example.com",
		Title:       "t",
		Description: "d",
		Image:       "https://example.com/i.png",
	})
	require.NoError(t, err)
	assert.Empty(t, u.calls)
}

func TestCreateCard_TruncatesMetadata(t *testing.T) {
	u := &fakeUnfurler{md: &unfurl.Metadata{Title: strings.Repeat("ü", MaxCardTitleLength+50)}}
	svc, env := newTestCardService(t, u)
	owner := env.user(t, "owner")

	c, err := svc.Create(context.Background(), owner.ID, CardInput{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, MaxCardTitleLength, len([]rune(c.Title)))
}

func TestCreateCard_Validation(t *testing.T) {
	svc, env := newTestCardService(t, &fakeUnfurler{})
	owner := env.user(t, "owner")

	for _, in := range []CardInput{
		{URL: ""},
		{URL: "file:///etc/passwd"},
		{URL: "https://example.com", Image: "data:image/png;base64,xx"},
	} {
		_, err := svc.Create(context.Background(), owner.ID, in)
		assert.ErrorIs(t, err, apperror.ErrValidation, in.URL)
	}
}

func TestCards_PrivateToOwner(t *testing.T) {
	svc, env := newTestCardService(t, &fakeUnfurler{md: &unfurl.Metadata{}})
	ctx := context.Background()
	owner := env.user(t, "owner")
	other := env.user(t, "other")

	c, err := svc.Create(ctx, owner.ID, CardInput{URL: "https://example.com", Title: "x"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, other.ID, c.ID, CardInput{URL: "https://evil.example", Title: "y"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, other.ID, c.ID), apperror.ErrForbidden)

	updated, err := svc.Update(ctx, owner.ID, c.ID, CardInput{URL: "https://example.org", Title: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)

	_, err = svc.Update(ctx, owner.ID, c.ID, CardInput{URL: "https://example.org"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	require.NoError(t, svc.Delete(ctx, owner.ID, c.ID))
	assert.ErrorIs(t, svc.Delete(ctx, owner.ID, c.ID), apperror.ErrNotFound)
}

func TestPreview(t *testing.T) {
	svc, _ := newTestCardService(t, &fakeUnfurler{md: &unfurl.Metadata{Title: "Hello"}})
	md, err := svc.Preview(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "Hello", md.Title)

	_, err = svc.Preview(context.Background(), "not a url")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	failing, _ := newTestCardService(t, &fakeUnfurler{err: errors.New("boom")})
	_, err = failing.Preview(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, apperror.ErrUpstream)
}

func TestPreview_BlockedAddressIsValidationError(t *testing.T) {
	svc, _ := newTestCardService(t, &fakeUnfurler{err: fmt.Errorf("unfurl: fetching 127.0.0.1: %w", unfurl.ErrBlockedAddress)})
	_, err := svc.Preview(context.Background(), "http://127.0.0.1/")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCreateCard_BlockedAddressKeepsUserFields(t *testing.T) {
	u := &fakeUnfurler{err: unfurl.ErrBlockedAddress}
	svc, env := newTestCardService(t, u)
	owner := env.user(t, "owner")
	card, err := svc.Create(context.Background(), owner.ID, CardInput{URL: "http://10.0.0.5/admin"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", card.Title)
	assert.Empty(t, card.Image)
}
