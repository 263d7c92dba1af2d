package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "store.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func seedVersion7(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec(schemaVersion7)
	require.NoError(t, err)
	_, err = db.Exec("pragma user_version = 7")
	require.NoError(t, err)
}

func currentUserVersion(t *testing.T, db *sql.DB) int {
	t.Helper()

	var v int
	require.NoError(t, db.QueryRow("pragma user_version").Scan(&v))

	return v
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query(fmt.Sprintf("pragma table_info(%s)", table))
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid, notNull, pk      int
			name, typeName        string
			defaultValue          sql.NullString
		)
		require.NoError(t, rows.Scan(&cid, &name, &typeName, &notNull, &defaultValue, &pk))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())

	sort.Strings(columns)

	return columns
}

func TestRunFreshDatabase(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Run(context.Background(), db))

	assert.Equal(t, CurrentVersion, currentUserVersion(t, db))

	for _, table := range []string{
		"videos", "music_tracks", "video_playlists", "playlist_videos",
		"video_playlist_tracks", "shared_playlists", "shared_playlist_videos",
		"shared_playlist_tracks", "screen_time_logs", "content_filters", "jobs",
	} {
		assert.NotEmpty(t, tableColumns(t, db, table), "table %s should exist", table)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Run(context.Background(), db))
	require.NoError(t, Run(context.Background(), db))

	assert.Equal(t, CurrentVersion, currentUserVersion(t, db))
}

func TestRunRefusesUnknownVersions(t *testing.T) {
	for _, version := range []int{3, 6, 11} {
		t.Run(fmt.Sprintf("version_%d", version), func(t *testing.T) {
			db := openTestDB(t)

			_, err := db.Exec(fmt.Sprintf("pragma user_version = %d", version))
			require.NoError(t, err)

			assert.Error(t, Run(context.Background(), db))
			assert.Equal(t, version, currentUserVersion(t, db))
		})
	}
}

func TestRunStepwiseMatchesFresh(t *testing.T) {
	stepped := openTestDB(t)
	seedVersion7(t, stepped)
	require.NoError(t, Run(context.Background(), stepped))

	fresh := openTestDB(t)
	require.NoError(t, Run(context.Background(), fresh))

	for _, table := range []string{
		"video_playlists", "playlist_videos", "video_playlist_tracks",
		"shared_playlists", "shared_playlist_videos", "shared_playlist_tracks",
	} {
		assert.Equal(t, tableColumns(t, fresh, table), tableColumns(t, stepped, table), "columns of %s should match", table)
	}
}

func TestRunCarriesDataForward(t *testing.T) {
	db := openTestDB(t)
	seedVersion7(t, db)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := db.Exec(
		"insert into playlists (id, created_at, updated_at, name, video_count, is_favorite, color) values (?, ?, ?, ?, ?, ?, ?)",
		1, now, now, "Morning Songs", 2, 1, "blue",
	)
	require.NoError(t, err)

	for i, videoID := range []string{"vid-a", "vid-b"} {
		_, err = db.Exec(
			"insert into videos (id, created_at, title, channel_id, channel_name, duration_seconds) values (?, ?, ?, ?, ?, ?)",
			videoID, now, fmt.Sprintf("Video %d", i+1), "chan-1", "Kids Channel", 120,
		)
		require.NoError(t, err)

		_, err = db.Exec(
			"insert into playlist_videos (playlist_id, video_id, position, added_at) values (?, ?, ?, ?)",
			1, videoID, i, now,
		)
		require.NoError(t, err)
	}

	require.NoError(t, Run(context.Background(), db))

	assert.Equal(t, CurrentVersion, currentUserVersion(t, db))

	var (
		name        string
		videoCount  int
		trackCount  int
		isImported  bool
		shareCode   sql.NullString
	)
	require.NoError(t, db.QueryRow(
		"select name, video_count, track_count, is_imported, share_code from video_playlists where id = ?", 1,
	).Scan(&name, &videoCount, &trackCount, &isImported, &shareCode))

	assert.Equal(t, "Morning Songs", name)
	assert.Equal(t, 2, videoCount)
	assert.Equal(t, 0, trackCount, "track_count should default to zero for pre-existing playlists")
	assert.False(t, isImported, "pre-existing playlists should come out not imported")
	assert.False(t, shareCode.Valid, "pre-existing playlists should come out unshared")

	var memberCount int
	require.NoError(t, db.QueryRow("select count(*) from playlist_videos where playlist_id = ?", 1).Scan(&memberCount))
	assert.Equal(t, 2, memberCount, "membership rows should survive the rebuild")

	var positions []int
	rows, err := db.Query("select position from playlist_videos where playlist_id = ? order by position", 1)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var p int
		require.NoError(t, rows.Scan(&p))
		positions = append(positions, p)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int{0, 1}, positions)
}
