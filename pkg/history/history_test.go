package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func record(id string, startedAt time.Time, status Status) Record {
	return Record{
		ID:               id,
		StartedAt:        startedAt,
		EndedAt:          startedAt.Add(2 * time.Minute),
		Status:           status,
		CategoriesWalked: 2,
		ItemsChecked:     5,
	}
}

func TestRecordAndRecent(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 8, 20, 7, 0, 0, 0, time.UTC)

	require.NoError(t, db.Record(record("run-1", base, StatusSucceeded)))
	require.NoError(t, db.Record(record("run-2", base.Add(time.Hour), StatusFailed)))

	records, err := db.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-2", records[0].ID, "newest first")
	assert.Equal(t, "run-1", records[1].ID)
	assert.Equal(t, StatusFailed, records[0].Status)
	assert.Equal(t, 2, records[1].CategoriesWalked)
	assert.Equal(t, 5, records[1].ItemsChecked)
}

func TestRecent_HonorsLimit(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 8, 20, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Record(record(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour), StatusSucceeded)))
	}

	records, err := db.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-4", records[0].ID)
}

func TestRecent_EmptyLog(t *testing.T) {
	db := openTestDB(t)

	records, err := db.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecord_FailureTextSurvivesRoundtrip(t *testing.T) {
	db := openTestDB(t)

	rec := record("run-1", time.Date(2026, 8, 20, 7, 0, 0, 0, time.UTC), StatusFailed)
	rec.Failure = "run: no categories found on dashboard"
	require.NoError(t, db.Record(rec))

	records, err := db.Recent(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.Failure, records[0].Failure)
}

func TestOpen_MigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Record(record("run-1", time.Now().UTC(), StatusSucceeded)))
	require.NoError(t, db.Close())

	// Reopening must preserve existing rows.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	records, err := db.Recent(10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
