package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testDB *DB

const testDBDSN = "file::memory:?_journal_mode=WAL&cache=shared"

func TestMain(m *testing.M) {
	db, err := OpenSQLite(testDBDSN, &gorm.Config{TranslateError: true})
	if err != nil {
		panic(fmt.Errorf("failed to connect to the DB: %w", err))
	}
	underlyingDb, err := db.DB.DB()
	if err != nil {
		panic(fmt.Errorf("failed to access underlying DB: %w", err))
	}
	underlyingDb.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode = WAL")
	if err := db.AddDatabaseTables(); err != nil {
		panic(fmt.Errorf("failed to add database tables: %w", err))
	}
	if err := db.CreateIndices(); err != nil {
		panic(fmt.Errorf("failed to create indices: %w", err))
	}

	testDB = db

	os.Exit(m.Run())
}

func makeEntry(userID string, loggedAt time.Time) *WorkLog {
	return &WorkLog{
		UserID:   userID,
		Day:      loggedAt.UTC().Format(DayFormat),
		LoggedAt: loggedAt,
	}
}

func TestWorkLogCountAndExists(t *testing.T) {
	ctx := context.Background()

	// A user with no entries has a zero count and does not exist
	cnt, err := testDB.WorkLogCountForUser(ctx, "100")
	require.NoError(t, err)
	require.Equal(t, int64(0), cnt)
	exists, err := testDB.WorkLogExistsForUser(ctx, "100")
	require.NoError(t, err)
	require.False(t, exists)

	// Two entries on different days
	day1 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("100", day1)))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("100", day1.AddDate(0, 0, 1))))

	cnt, err = testDB.WorkLogCountForUser(ctx, "100")
	require.NoError(t, err)
	require.Equal(t, int64(2), cnt)
	exists, err = testDB.WorkLogExistsForUser(ctx, "100")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = testDB.WorkLogExistsForUserOnDay(ctx, "100", "2024-01-01")
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = testDB.WorkLogExistsForUserOnDay(ctx, "100", "2024-01-03")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestWorkLogLatestForUser(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.WorkLogLatestForUser(ctx, "200")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Insert three entries where the last insert carries the earliest
	// timestamp. Latest must follow insertion order (max ID), not LoggedAt.
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("200", base.AddDate(0, 0, 2))))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("200", base.AddDate(0, 0, 1))))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("200", base)))

	latest, err := testDB.WorkLogLatestForUser(ctx, "200")
	require.NoError(t, err)
	require.Equal(t, "2024-03-10", latest.Day)
	require.True(t, latest.LoggedAt.Equal(base))
}

func TestWorkLogUniqueUserDay(t *testing.T) {
	ctx := context.Background()

	at := time.Date(2024, 5, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("300", at)))

	// A second row for the same user and day trips the unique index
	err := testDB.WorkLogCreate(ctx, makeEntry("300", at.Add(8*time.Hour)))
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// Another user on the same day is fine
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("301", at)))
}

func TestWorkLogCountsByUser(t *testing.T) {
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	// A logs first and ends with 3 entries, B also has 3, C has 1
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("400", base)))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("401", base)))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("400", base.AddDate(0, 0, 1))))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("401", base.AddDate(0, 0, 1))))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("400", base.AddDate(0, 0, 2))))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("401", base.AddDate(0, 0, 2))))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("402", base.AddDate(0, 0, 2))))

	counts, err := testDB.WorkLogCountsByUser(ctx, nil)
	require.NoError(t, err)
	counts = onlyUsers(counts, "400", "401", "402")
	expected := []WorkLogCount{
		{UserID: "400", Count: 3},
		{UserID: "401", Count: 3},
		{UserID: "402", Count: 1},
	}
	if diff := deep.Equal(expected, counts); diff != nil {
		t.Fatalf("unexpected leaderboard: %v", diff)
	}

	// Windowed: only the last day counts
	since := base.AddDate(0, 0, 2)
	counts, err = testDB.WorkLogCountsByUser(ctx, &since)
	require.NoError(t, err)
	counts = onlyUsers(counts, "400", "401", "402")
	expected = []WorkLogCount{
		{UserID: "400", Count: 1},
		{UserID: "401", Count: 1},
		{UserID: "402", Count: 1},
	}
	if diff := deep.Equal(expected, counts); diff != nil {
		t.Fatalf("unexpected windowed leaderboard: %v", diff)
	}
}

func TestWorkLogDelete(t *testing.T) {
	ctx := context.Background()

	base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("500", base)))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("500", base.AddDate(0, 0, 1))))
	require.NoError(t, testDB.WorkLogCreate(ctx, makeEntry("501", base)))

	removed, err := testDB.WorkLogDeleteForUser(ctx, "500")
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	exists, err := testDB.WorkLogExistsForUser(ctx, "500")
	require.NoError(t, err)
	require.False(t, exists)
	exists, err = testDB.WorkLogExistsForUser(ctx, "501")
	require.NoError(t, err)
	require.True(t, exists)

	removed, err = testDB.WorkLogDeleteAll(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, int64(1))
	counts, err := testDB.WorkLogCountsByUser(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, counts)

	assertNoLeakedConnections(t, testDB)
}

func assertNoLeakedConnections(t *testing.T, db *DB) {
	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	numConns := stats.OpenConnections
	if numConns > 1 {
		t.Fatalf("expected DB to not leak connections, actually have %d", numConns)
	}
}

// onlyUsers filters the shared test DB's leaderboard down to the users a test
// inserted itself, preserving order.
func onlyUsers(counts []WorkLogCount, userIDs ...string) []WorkLogCount {
	keep := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		keep[id] = true
	}
	var out []WorkLogCount
	for _, c := range counts {
		if keep[c.UserID] {
			out = append(out, c)
		}
	}
	return out
}
