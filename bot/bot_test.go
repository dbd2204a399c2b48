package bot_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skypost/bot"
	"skypost/images"
	"skypost/ledger"
	"skypost/models"
)

type fakeSource struct {
	items []models.FeedItem
	err   error
}

func (f *fakeSource) Fetch(ctx context.Context) ([]models.FeedItem, error) {
	return f.items, f.err
}

type fakeStore struct {
	entries  []string
	version  string
	readErr  error
	writeErr error

	writes       int
	wrote        []string
	wroteVersion string
}

func (f *fakeStore) Read(ctx context.Context) ([]string, string, error) {
	return f.entries, f.version, f.readErr
}

func (f *fakeStore) Write(ctx context.Context, entries []string, version string) error {
	f.writes++
	f.wrote = entries
	f.wroteVersion = version
	return f.writeErr
}

type fakeResolver struct {
	imgs map[string]*models.AdaptedImage
	errs map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, link string) (*models.AdaptedImage, error) {
	if err := f.errs[link]; err != nil {
		return nil, err
	}
	return f.imgs[link], nil
}

type fakePoster struct {
	failLinks map[string]bool
	payloads  []models.PostPayload
}

func (f *fakePoster) PublishPost(ctx context.Context, payload models.PostPayload) (string, error) {
	if f.failLinks[payload.Card.Uri] {
		return "", errors.New("post rejected")
	}
	f.payloads = append(f.payloads, payload)
	return fmt.Sprintf("at://did:plc:test/app.bsky.feed.post/%d", len(f.payloads)), nil
}

func (f *fakePoster) postedLinks() []string {
	return lo.Map(f.payloads, func(payload models.PostPayload, _ int) string {
		return payload.Card.Uri
	})
}

type fixture struct {
	source   *fakeSource
	store    *fakeStore
	resolver *fakeResolver
	poster   *fakePoster
	logins   int
	loginErr error
}

func (f *fixture) build(cfg bot.Config) *bot.Bot {
	return bot.New(cfg, f.source, f.store, f.resolver, func(ctx context.Context) (bot.Poster, error) {
		f.logins++
		if f.loginErr != nil {
			return nil, f.loginErr
		}
		return f.poster, nil
	})
}

func newFixture(items []models.FeedItem, entries []string) *fixture {
	return &fixture{
		source:   &fakeSource{items: items},
		store:    &fakeStore{entries: entries, version: "v1"},
		resolver: &fakeResolver{imgs: map[string]*models.AdaptedImage{}, errs: map[string]error{}},
		poster:   &fakePoster{failLinks: map[string]bool{}},
	}
}

func threeItems() []models.FeedItem {
	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	// Deliberately out of chronological order
	return []models.FeedItem{
		{Link: "https://example.com/c", Title: "C", Summary: "c", PublishedAt: t1.Add(2 * time.Hour)},
		{Link: "https://example.com/a", Title: "A", Summary: "a", PublishedAt: t1},
		{Link: "https://example.com/b", Title: "B", Summary: "b", PublishedAt: t1.Add(time.Hour)},
	}
}

func TestRunCyclePostsNewItemsInOrder(t *testing.T) {
	f := newFixture(threeItems(), []string{"https://example.com/b"})
	b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})

	report, err := b.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.NewItems)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c"}, f.poster.postedLinks())
	assert.Equal(t, 1, f.logins)

	// Confirmed links are prepended ahead of the old ledger contents
	assert.Equal(t, 1, f.store.writes)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c", "https://example.com/b"}, f.store.wrote)
	assert.Equal(t, "v1", f.store.wroteVersion)
	assert.True(t, report.LedgerWritten)
}

func TestRunCycleIdempotent(t *testing.T) {
	items := threeItems()
	entries := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}

	f := newFixture(items, entries)
	b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})

	for i := 0; i < 2; i++ {
		report, err := b.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.NewItems)
	}

	assert.Empty(t, f.poster.payloads)
	assert.Zero(t, f.store.writes)
	assert.Zero(t, f.logins)
}

func TestRunCycleEmptyFeedAborts(t *testing.T) {
	f := newFixture(nil, []string{"https://example.com/a"})
	b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})

	report, err := b.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.FeedItems)
	assert.Empty(t, f.poster.payloads)
	assert.Zero(t, f.store.writes)
}

func TestRunCycleFailsClosedOnSourceErrors(t *testing.T) {
	t.Run("feed fetch failure", func(t *testing.T) {
		f := newFixture(nil, nil)
		f.source.err = errors.New("feed unreachable")
		b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})

		_, err := b.RunCycle(context.Background())
		assert.Error(t, err)
		assert.Zero(t, f.store.writes)
		assert.Empty(t, f.poster.payloads)
	})

	t.Run("ledger read failure", func(t *testing.T) {
		f := newFixture(threeItems(), nil)
		f.store.readErr = errors.New("ledger unreachable")
		b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})

		_, err := b.RunCycle(context.Background())
		assert.Error(t, err)
		assert.Zero(t, f.store.writes)
		assert.Empty(t, f.poster.payloads)
	})
}

func TestRunCycleImageFailureDegradesToNoThumb(t *testing.T) {
	f := newFixture(threeItems(), nil)
	f.resolver.imgs["https://example.com/a"] = &models.AdaptedImage{Data: []byte{0x01}, MimeType: "image/jpeg"}
	f.resolver.imgs["https://example.com/c"] = &models.AdaptedImage{Data: []byte{0x02}, MimeType: "image/jpeg"}
	f.resolver.errs["https://example.com/b"] = errors.New("image fetch timed out")

	b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})
	report, err := b.RunCycle(context.Background())
	require.NoError(t, err)

	// All three articles are posted, the failing one without a thumbnail
	require.Len(t, f.poster.payloads, 3)
	for _, payload := range f.poster.payloads {
		if payload.Card.Uri == "https://example.com/b" {
			assert.Nil(t, payload.Card.Thumb)
		} else {
			assert.NotNil(t, payload.Card.Thumb)
		}
	}
	assert.Len(t, report.Results, 3)
}

func TestRunCycleUnrecoverableImageOmitsArticle(t *testing.T) {
	f := newFixture(threeItems(), nil)
	f.resolver.errs["https://example.com/b"] = images.ErrUnrecoverable

	b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})
	report, err := b.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c"}, f.poster.postedLinks())
	assert.NotContains(t, f.store.wrote, "https://example.com/b")

	failed, ok := lo.Find(report.Results, func(result models.PostResult) bool {
		return result.Link == "https://example.com/b"
	})
	require.True(t, ok)
	assert.False(t, failed.Posted)
	assert.Equal(t, models.StageImage, failed.Stage)
}

func TestRunCyclePublishFailureExcludedFromLedger(t *testing.T) {
	f := newFixture(threeItems(), nil)
	f.poster.failLinks["https://example.com/b"] = true

	b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})
	report, err := b.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c"}, f.poster.postedLinks())
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c"}, f.store.wrote)

	failed, ok := lo.Find(report.Results, func(result models.PostResult) bool {
		return result.Link == "https://example.com/b"
	})
	require.True(t, ok)
	assert.Equal(t, models.StagePublish, failed.Stage)
}

func TestRunCycleLedgerConflictIsSoftFailure(t *testing.T) {
	f := newFixture(threeItems(), nil)
	f.store.writeErr = ledger.ErrConflict

	b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})
	report, err := b.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, f.poster.payloads, 3)
	assert.True(t, report.LedgerConflict)
	assert.False(t, report.LedgerWritten)
}

func TestRunCycleKeywordSuppression(t *testing.T) {
	f := newFixture(threeItems(), nil)
	b := f.build(bot.Config{
		FeedID:       "test",
		RetentionCap: 100,
		Exclude:      []string{"b"},
	})

	report, err := b.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Suppressed)
	assert.NotContains(t, f.poster.postedLinks(), "https://example.com/b")
	// Suppressed links are still recorded so they do not resurface
	assert.Contains(t, f.store.wrote, "https://example.com/b")
}

func TestRunCycleLoginFailure(t *testing.T) {
	f := newFixture(threeItems(), nil)
	f.loginErr = errors.New("invalid credentials")

	b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})
	report, err := b.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.poster.payloads)
	assert.Zero(t, f.store.writes)
	assert.Len(t, report.Results, 3)
}

func TestRunCycleRetentionCap(t *testing.T) {
	existing := make([]string, 0, 99)
	for i := 0; i < 99; i++ {
		existing = append(existing, fmt.Sprintf("https://example.com/old-%d", i))
	}

	f := newFixture(threeItems(), existing)
	b := f.build(bot.Config{FeedID: "test", RetentionCap: 100})

	_, err := b.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, f.store.wrote, 100)
	assert.Equal(t, "https://example.com/a", f.store.wrote[0])
}
