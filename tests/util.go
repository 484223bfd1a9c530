// Package testutil holds the helpers shared by the storage and API tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prepdesk/core"
	"github.com/trezcool/prepdesk/core/template"
	"github.com/trezcool/prepdesk/storage/database"
	rediscache "github.com/trezcool/prepdesk/storage/cache/redis"
)

// Config returns the configuration of the TEST environment.
func Config(t *testing.T) *core.Config {
	t.Helper()
	t.Setenv("ENV", "TEST")
	return core.NewConfig()
}

// OpenDB connects to the test database and migrates it. The test is skipped when no database is reachable.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := Config(t)

	db, err := database.Open(conf)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = database.Ping(ctx, db, 3); err != nil {
		_ = db.Close()
		t.Skipf("database %s unavailable: %v", conf.Database.Address(), err)
	}
	require.NoError(t, database.Migrate(context.Background(), db.DB))

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// OpenRedis connects to the test Redis server. The test is skipped when it is not reachable.
func OpenRedis(t *testing.T) *redis.Client {
	t.Helper()
	conf := Config(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rdb, err := rediscache.Open(ctx, conf)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// PartTemplateID returns an id no other test uses, so that tests can share a database.
func PartTemplateID() string {
	return "pt-" + uuid.NewString()
}

func CreateSaveEntry(
	t *testing.T,
	repo template.SaveLogRepository,
	partTemplateID string,
	outcome template.SaveOutcome,
	createdAt time.Time,
) template.SaveEntry {
	t.Helper()
	entry, err := repo.AddSaveEntry(context.Background(), template.SaveEntry{
		PartTemplateID: partTemplateID,
		EditorID:       uuid.NewString(),
		Part:           template.PartReadingComprehension,
		Outcome:        outcome,
		Passages:       2,
		Questions:      5,
		Uploads:        1,
		Message:        string(outcome),
		CreatedAt:      createdAt,
	})
	if err != nil {
		t.Fatalf("CreateSaveEntry() failed: %v", err)
	}
	return entry
}

// CheckSaveLogRepository checks the behaviour every save log implementation shares.
func CheckSaveLogRepository(t *testing.T, repo template.SaveLogRepository) {
	ctx := context.Background()
	ptID, otherID := PartTemplateID(), PartTemplateID()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := CreateSaveEntry(t, repo, ptID, template.OutcomeInvalid, now.Add(-time.Hour))
	second := CreateSaveEntry(t, repo, ptID, template.OutcomeSuccess, now)
	CreateSaveEntry(t, repo, otherID, template.OutcomeFailure, now)

	assert.NotZero(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	entries, err := repo.QuerySaveEntries(ctx, ptID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID, "most recent first")
	assert.Equal(t, first.ID, entries[1].ID)

	got := entries[0]
	assert.Equal(t, ptID, got.PartTemplateID)
	assert.Equal(t, second.EditorID, got.EditorID)
	assert.Equal(t, template.PartReadingComprehension, got.Part)
	assert.Equal(t, template.OutcomeSuccess, got.Outcome)
	assert.Equal(t, 2, got.Passages)
	assert.Equal(t, 5, got.Questions)
	assert.Equal(t, 1, got.Uploads)
	assert.Equal(t, "success", got.Message)
	assert.True(t, now.Equal(got.CreatedAt), "got %v, want %v", got.CreatedAt, now)

	entries, err = repo.QuerySaveEntries(ctx, PartTemplateID())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

// CheckDraftRepository checks the behaviour every draft store shares.
func CheckDraftRepository(t *testing.T, repo template.DraftRepository) {
	ctx := context.Background()
	ptID := PartTemplateID()

	_, err := repo.GetDraft(ctx, ptID)
	assert.Equal(t, template.ErrDraftNotFound, err)
	assert.Equal(t, template.ErrDraftNotFound, repo.DeleteDraft(ctx, ptID))

	d := template.Draft{
		PartTemplateID: ptID,
		Part:           template.PartTalks,
		Content:        []byte(`{"passages":[]}`),
		SavedAt:        time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.PutDraft(ctx, d))

	got, err := repo.GetDraft(ctx, ptID)
	require.NoError(t, err)
	assert.Equal(t, d.PartTemplateID, got.PartTemplateID)
	assert.Equal(t, d.Part, got.Part)
	assert.JSONEq(t, string(d.Content), string(got.Content))
	assert.True(t, d.SavedAt.Equal(got.SavedAt))

	d.Content = []byte(`{"passages":[{"type":"TEXT"}]}`)
	require.NoError(t, repo.PutDraft(ctx, d))
	got, err = repo.GetDraft(ctx, ptID)
	require.NoError(t, err)
	assert.JSONEq(t, string(d.Content), string(got.Content), "put replaces the draft")

	require.NoError(t, repo.DeleteDraft(ctx, ptID))
	_, err = repo.GetDraft(ctx, ptID)
	assert.Equal(t, template.ErrDraftNotFound, err)
}
