package library_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"fknsrs.biz/p/sorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/kidsbeats/internal/ctxclock"
	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/internal/library"
	"fknsrs.biz/p/kidsbeats/internal/migrate"
	"fknsrs.biz/p/kidsbeats/internal/ptr"
	"fknsrs.biz/p/kidsbeats/models"
)

func init() {
	sorm.SetParameterPrefix("?")
}

var testTime = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

func testContext(t *testing.T) context.Context {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "store.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, migrate.Run(ctx, db))

	ctx = ctxdb.WithDB(ctx, db)
	ctx = ctxclock.WithClock(ctx, ctxclock.NewStaticClock(testTime))

	return ctx
}

func mustAddVideo(t *testing.T, ctx context.Context, id, title string) {
	t.Helper()

	require.NoError(t, library.UpsertVideo(ctx, &models.Video{
		ID:          id,
		Title:       title,
		ChannelID:   "chan-1",
		ChannelName: "Kids Channel",
	}))
}

func mustAddTrack(t *testing.T, ctx context.Context, id, title string) {
	t.Helper()

	require.NoError(t, library.UpsertTrack(ctx, &models.Track{
		ID:         id,
		Title:      title,
		ArtistID:   "artist-1",
		ArtistName: "The Wigglers",
	}))
}

func TestCreateAndGetPlaylist(t *testing.T) {
	ctx := testContext(t)

	playlist, err := library.CreatePlaylist(ctx, "Bedtime", nil, models.ColorPurple)
	require.NoError(t, err)
	require.NotZero(t, playlist.ID)

	loaded, err := library.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)

	assert.Equal(t, "Bedtime", loaded.Name)
	assert.Equal(t, models.ColorPurple, loaded.Color)
	assert.Equal(t, 0, loaded.VideoCount)
	assert.Equal(t, 0, loaded.TrackCount)
	assert.Empty(t, loaded.Videos)
	assert.Empty(t, loaded.Tracks)
	assert.False(t, loaded.IsShared())
	assert.False(t, loaded.IsImported)
}

func TestCreatePlaylistRejectsInvalidColor(t *testing.T) {
	ctx := testContext(t)

	_, err := library.CreatePlaylist(ctx, "Bad", nil, models.PlaylistColor("magenta"))
	assert.ErrorIs(t, err, library.ErrInvalidColor)
}

func TestGetPlaylistNotFound(t *testing.T) {
	ctx := testContext(t)

	_, err := library.GetPlaylist(ctx, 12345)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMembershipCountsStayInSync(t *testing.T) {
	ctx := testContext(t)

	playlist, err := library.CreatePlaylist(ctx, "Car Trips", nil, models.ColorBlue)
	require.NoError(t, err)

	mustAddVideo(t, ctx, "vid-a", "Wheels on the Bus")
	mustAddVideo(t, ctx, "vid-b", "Baby Shark")
	mustAddTrack(t, ctx, "trk-a", "Hot Potato")

	require.NoError(t, library.AddVideoToPlaylist(ctx, playlist.ID, "vid-a"))
	require.NoError(t, library.AddVideoToPlaylist(ctx, playlist.ID, "vid-b"))
	require.NoError(t, library.AddTrackToPlaylist(ctx, playlist.ID, "trk-a"))

	loaded, err := library.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.VideoCount)
	assert.Equal(t, 1, loaded.TrackCount)
	assert.Equal(t, 3, loaded.TotalItemCount())
	require.Len(t, loaded.Videos, 2)
	assert.Equal(t, "vid-a", loaded.Videos[0].ID, "videos should come back in insertion order")
	assert.Equal(t, "vid-b", loaded.Videos[1].ID)

	// adding a member twice is a no-op
	require.NoError(t, library.AddVideoToPlaylist(ctx, playlist.ID, "vid-a"))

	loaded, err = library.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.VideoCount)

	require.NoError(t, library.RemoveVideoFromPlaylist(ctx, playlist.ID, "vid-a"))

	// and so is removing a non-member
	require.NoError(t, library.RemoveVideoFromPlaylist(ctx, playlist.ID, "vid-a"))

	loaded, err = library.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.VideoCount)
	require.Len(t, loaded.Videos, 1)
	assert.Equal(t, "vid-b", loaded.Videos[0].ID)
}

func TestAddVideoToPlaylistRequiresBothRows(t *testing.T) {
	ctx := testContext(t)

	playlist, err := library.CreatePlaylist(ctx, "Empty", nil, models.ColorGreen)
	require.NoError(t, err)

	assert.ErrorIs(t, library.AddVideoToPlaylist(ctx, playlist.ID, "no-such-video"), sql.ErrNoRows)
	assert.ErrorIs(t, library.AddVideoToPlaylist(ctx, 999, "no-such-video"), sql.ErrNoRows)
}

func TestDeleteVideoLeavesMembershipRows(t *testing.T) {
	ctx := testContext(t)

	first, err := library.CreatePlaylist(ctx, "First", nil, models.ColorPink)
	require.NoError(t, err)
	second, err := library.CreatePlaylist(ctx, "Second", nil, models.ColorTeal)
	require.NoError(t, err)

	mustAddVideo(t, ctx, "vid-shared", "Twinkle Twinkle")
	require.NoError(t, library.AddVideoToPlaylist(ctx, first.ID, "vid-shared"))
	require.NoError(t, library.AddVideoToPlaylist(ctx, second.ID, "vid-shared"))

	require.NoError(t, library.DeleteVideo(ctx, "vid-shared"))

	_, err = library.GetVideo(ctx, "vid-shared")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// both playlists keep their membership rows; the catalog row is just
	// gone, so the loaded item lists skip it
	for _, id := range []int{first.ID, second.ID} {
		var n int
		require.NoError(t, ctxdb.GetDB(ctx).QueryRow("select count(*) from playlist_videos where playlist_id = ?", id).Scan(&n))
		assert.Equal(t, 1, n)

		loaded, err := library.GetPlaylist(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, loaded.Videos)
	}
}

func TestDeletePlaylistRemovesMembershipRows(t *testing.T) {
	ctx := testContext(t)

	playlist, err := library.CreatePlaylist(ctx, "Doomed", nil, models.ColorOrange)
	require.NoError(t, err)

	mustAddVideo(t, ctx, "vid-a", "Video A")
	mustAddTrack(t, ctx, "trk-a", "Track A")
	require.NoError(t, library.AddVideoToPlaylist(ctx, playlist.ID, "vid-a"))
	require.NoError(t, library.AddTrackToPlaylist(ctx, playlist.ID, "trk-a"))

	require.NoError(t, library.DeletePlaylist(ctx, playlist.ID))

	_, err = library.GetPlaylist(ctx, playlist.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	var n int
	require.NoError(t, ctxdb.GetDB(ctx).QueryRow("select count(*) from playlist_videos where playlist_id = ?", playlist.ID).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, ctxdb.GetDB(ctx).QueryRow("select count(*) from video_playlist_tracks where playlist_id = ?", playlist.ID).Scan(&n))
	assert.Zero(t, n)

	// the catalog items survive
	_, err = library.GetVideo(ctx, "vid-a")
	assert.NoError(t, err)
	_, err = library.GetTrack(ctx, "trk-a")
	assert.NoError(t, err)
}

func TestUpdatePlaylist(t *testing.T) {
	ctx := testContext(t)

	playlist, err := library.CreatePlaylist(ctx, "Old Name", ptr.String("songs for the car"), models.ColorRed)
	require.NoError(t, err)

	playlist.Name = "New Name"
	playlist.Description = ptr.String("songs for the bath")
	playlist.IsFavorite = true
	require.NoError(t, library.UpdatePlaylist(ctx, playlist))

	loaded, err := library.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Name", loaded.Name)
	require.NotNil(t, loaded.Description)
	assert.Equal(t, "songs for the bath", *loaded.Description)
	assert.True(t, loaded.IsFavorite)
}

func TestRecountPlaylistRepairsDrift(t *testing.T) {
	ctx := testContext(t)

	playlist, err := library.CreatePlaylist(ctx, "Drifted", nil, models.ColorYellow)
	require.NoError(t, err)

	mustAddVideo(t, ctx, "vid-a", "Video A")
	require.NoError(t, library.AddVideoToPlaylist(ctx, playlist.ID, "vid-a"))

	_, err = ctxdb.GetDB(ctx).Exec("update video_playlists set video_count = 99, track_count = 42 where id = ?", playlist.ID)
	require.NoError(t, err)

	require.NoError(t, library.RecountPlaylist(ctx, playlist.ID))

	loaded, err := library.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.VideoCount)
	assert.Equal(t, 0, loaded.TrackCount)
}
