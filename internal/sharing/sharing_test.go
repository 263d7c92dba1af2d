package sharing_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"fknsrs.biz/p/sorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/kidsbeats/internal/config"
	"fknsrs.biz/p/kidsbeats/internal/ctxclock"
	"fknsrs.biz/p/kidsbeats/internal/ctxconfig"
	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/internal/library"
	"fknsrs.biz/p/kidsbeats/internal/migrate"
	"fknsrs.biz/p/kidsbeats/internal/sharing"
	"fknsrs.biz/p/kidsbeats/models"
)

func init() {
	sorm.SetParameterPrefix("?")
}

var shareTime = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

func testContext(t *testing.T) context.Context {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "store.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, migrate.Run(ctx, db))

	ctx = ctxdb.WithDB(ctx, db)
	ctx = ctxconfig.WithConfig(ctx, config.Config{
		ChildName:         "Maya",
		FamilyID:          "fam-123",
		ShareValidityDays: 7,
		ShareMaxRedeems:   1,
	})

	return withClock(ctx, shareTime)
}

func withClock(ctx context.Context, at time.Time) context.Context {
	return ctxclock.WithClock(ctx, ctxclock.NewStaticClock(at))
}

func addVideo(t *testing.T, ctx context.Context, id, title, channelID string) {
	t.Helper()

	require.NoError(t, library.UpsertVideo(ctx, &models.Video{
		ID:          id,
		Title:       title,
		ChannelID:   channelID,
		ChannelName: "Channel " + channelID,
	}))
}

func addTrack(t *testing.T, ctx context.Context, id, title, artistID string) {
	t.Helper()

	require.NoError(t, library.UpsertTrack(ctx, &models.Track{
		ID:         id,
		Title:      title,
		ArtistID:   artistID,
		ArtistName: "Artist " + artistID,
	}))
}

// seedPlaylist builds the usual fixture: three videos and two tracks.
func seedPlaylist(t *testing.T, ctx context.Context) int {
	t.Helper()

	playlist, err := library.CreatePlaylist(ctx, "Road Trip", nil, models.ColorBlue)
	require.NoError(t, err)

	addVideo(t, ctx, "vid-1", "Video One", "chan-1")
	addVideo(t, ctx, "vid-2", "Video Two", "chan-1")
	addVideo(t, ctx, "vid-3", "Video Three", "chan-2")
	addTrack(t, ctx, "trk-1", "Track One", "artist-1")
	addTrack(t, ctx, "trk-2", "Track Two", "artist-2")

	for _, id := range []string{"vid-1", "vid-2", "vid-3"} {
		require.NoError(t, library.AddVideoToPlaylist(ctx, playlist.ID, id))
	}
	for _, id := range []string{"trk-1", "trk-2"} {
		require.NoError(t, library.AddTrackToPlaylist(ctx, playlist.ID, id))
	}

	return playlist.ID
}

func mustShare(t *testing.T, ctx context.Context, playlistID int) string {
	t.Helper()

	result := sharing.Share(ctx, playlistID)
	success, ok := result.(sharing.ShareSuccess)
	require.True(t, ok, "expected ShareSuccess, got %#v", result)

	return success.ShareCode
}

func TestShareProducesReadableCode(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)

	code := mustShare(t, ctx, playlistID)

	assert.Len(t, code, 6)
	for _, c := range code {
		assert.NotContains(t, "01IO", string(c), "codes shouldn't contain ambiguous characters")
		assert.True(t, strings.ContainsRune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789", c), "unexpected character %q in code %q", c, code)
	}

	playlist, err := library.GetPlaylist(ctx, playlistID)
	require.NoError(t, err)
	require.True(t, playlist.IsShared())
	assert.Equal(t, code, *playlist.ShareCode)
	require.NotNil(t, playlist.SharedAt)
	assert.Equal(t, shareTime, playlist.SharedAt.UTC())
}

func TestShareUnknownPlaylist(t *testing.T) {
	ctx := testContext(t)

	result := sharing.Share(ctx, 999)
	failure, ok := result.(sharing.ShareError)
	require.True(t, ok, "expected ShareError, got %#v", result)
	assert.Equal(t, sharing.ReasonNotFound, failure.Reason)
}

func TestShareEmptyPlaylist(t *testing.T) {
	ctx := testContext(t)

	playlist, err := library.CreatePlaylist(ctx, "Nothing Yet", nil, models.ColorGreen)
	require.NoError(t, err)

	result := sharing.Share(ctx, playlist.ID)
	failure, ok := result.(sharing.ShareError)
	require.True(t, ok, "expected ShareError, got %#v", result)
	assert.Equal(t, sharing.ReasonEmptyPlaylist, failure.Reason)
}

func TestShareNeedsIdentityConfigured(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)

	anon := ctxconfig.WithConfig(ctx, config.Config{ShareValidityDays: 7})

	result := sharing.Share(anon, playlistID)
	failure, ok := result.(sharing.ShareError)
	require.True(t, ok, "expected ShareError, got %#v", result)
	assert.Equal(t, sharing.ReasonNotConfigured, failure.Reason)
}

func TestValidateHappyPath(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	result := sharing.Validate(ctx, code)
	valid, ok := result.(sharing.ValidateValid)
	require.True(t, ok, "expected ValidateValid, got %#v", result)

	assert.Equal(t, code, valid.Preview.ShareCode)
	assert.Equal(t, "Road Trip", valid.Preview.PlaylistName)
	assert.Equal(t, "Maya", valid.Preview.SharedByChildName)
	assert.Equal(t, 3, valid.Preview.VideoCount)
	assert.Equal(t, 2, valid.Preview.TrackCount)
	assert.Equal(t, 5, valid.Preview.TotalItemCount())
	assert.Equal(t, 0, valid.Preview.RedeemCount)
	assert.Equal(t, 1, valid.Preview.MaxRedeems)
	assert.Equal(t, shareTime.Add(7*24*time.Hour), valid.Preview.ExpiresAt.UTC())
}

func TestValidateUnknownCode(t *testing.T) {
	ctx := testContext(t)

	result := sharing.Validate(ctx, "ZZZZZZ")
	invalid, ok := result.(sharing.ValidateInvalid)
	require.True(t, ok, "expected ValidateInvalid, got %#v", result)
	assert.Equal(t, sharing.ReasonNotFound, invalid.Reason)
}

func TestValidateExpiryBoundary(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	expiresAt := shareTime.Add(7 * 24 * time.Hour)

	// exactly at the deadline is still redeemable
	result := sharing.Validate(withClock(ctx, expiresAt), code)
	_, ok := result.(sharing.ValidateValid)
	assert.True(t, ok, "expected ValidateValid at the deadline, got %#v", result)

	// a second past it isn't
	result = sharing.Validate(withClock(ctx, expiresAt.Add(time.Second)), code)
	invalid, ok := result.(sharing.ValidateInvalid)
	require.True(t, ok, "expected ValidateInvalid past the deadline, got %#v", result)
	assert.Equal(t, sharing.ReasonExpired, invalid.Reason)
}

func TestExpiredCodeStaysExpired(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	// expiry is computed against the clock, never written back to the row,
	// so the reason stays "expired" no matter how long ago the window closed
	for _, age := range []time.Duration{8 * 24 * time.Hour, 60 * 24 * time.Hour} {
		late := withClock(ctx, shareTime.Add(age))

		result := sharing.Validate(late, code)
		invalid, ok := result.(sharing.ValidateInvalid)
		require.True(t, ok, "expected ValidateInvalid, got %#v", result)
		assert.Equal(t, sharing.ReasonExpired, invalid.Reason)

		iResult := sharing.Import(late, code)
		iInvalid, ok := iResult.(sharing.ImportInvalid)
		require.True(t, ok, "expected ImportInvalid, got %#v", iResult)
		assert.Equal(t, sharing.ReasonExpired, iInvalid.Reason)
	}

	var isActive bool
	require.NoError(t, ctxdb.GetDB(ctx).QueryRow("select is_active from shared_playlists where share_code = ?", code).Scan(&isActive))
	assert.True(t, isActive, "lapsing shouldn't deactivate the share row")
}

func TestImportHappyPath(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	importTime := shareTime.Add(time.Hour)

	result := sharing.Import(withClock(ctx, importTime), code)
	success, ok := result.(sharing.ImportSuccess)
	require.True(t, ok, "expected ImportSuccess, got %#v", result)

	assert.Equal(t, 5, success.ItemsImported)
	assert.Equal(t, 0, success.ItemsFiltered)
	assert.NotEqual(t, playlistID, success.PlaylistID)

	imported, err := library.GetPlaylist(ctx, success.PlaylistID)
	require.NoError(t, err)
	assert.Equal(t, "Road Trip", imported.Name)
	assert.True(t, imported.IsImported)
	require.NotNil(t, imported.ImportedFrom)
	assert.Equal(t, "Maya", *imported.ImportedFrom)
	require.NotNil(t, imported.ImportedAt)
	assert.Equal(t, importTime, imported.ImportedAt.UTC())
	assert.False(t, imported.IsShared(), "an imported copy starts unshared")
	assert.Equal(t, 3, imported.VideoCount)
	assert.Equal(t, 2, imported.TrackCount)
	require.Len(t, imported.Videos, 3)
	assert.Equal(t, "vid-1", imported.Videos[0].ID, "import should preserve item order")
	assert.Equal(t, "vid-3", imported.Videos[2].ID)
}

func TestImportSpendsRedemption(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	_, ok := sharing.Import(ctx, code).(sharing.ImportSuccess)
	require.True(t, ok)

	// the single redemption is spent; a second import is turned away
	result := sharing.Import(ctx, code)
	invalid, ok := result.(sharing.ImportInvalid)
	require.True(t, ok, "expected ImportInvalid, got %#v", result)
	assert.Equal(t, sharing.ReasonRedemptionLimit, invalid.Reason)

	// and validation reports the same thing
	vResult := sharing.Validate(ctx, code)
	vInvalid, ok := vResult.(sharing.ValidateInvalid)
	require.True(t, ok, "expected ValidateInvalid, got %#v", vResult)
	assert.Equal(t, sharing.ReasonRedemptionLimit, vInvalid.Reason)
}

func TestImportRedemptionRace(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	// a single connection makes the racing transactions queue at the pool
	// instead of tripping over SQLite's file lock, so what's under test is
	// the conditional update spending the last redemption
	ctxdb.GetDB(ctx).SetMaxOpenConns(1)

	const racers = 4

	results := make(chan sharing.ImportResult, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- sharing.Import(ctx, code)
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, limited int
	for result := range results {
		switch r := result.(type) {
		case sharing.ImportSuccess:
			succeeded++
		case sharing.ImportInvalid:
			assert.Equal(t, sharing.ReasonRedemptionLimit, r.Reason)
			limited++
		default:
			t.Fatalf("unexpected result %#v", result)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one racer should win the last redemption")
	assert.Equal(t, racers-1, limited)
}

func TestImportUnknownAndExpiredCodes(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	result := sharing.Import(ctx, "ZZZZZZ")
	invalid, ok := result.(sharing.ImportInvalid)
	require.True(t, ok, "expected ImportInvalid, got %#v", result)
	assert.Equal(t, sharing.ReasonNotFound, invalid.Reason)

	late := withClock(ctx, shareTime.Add(8*24*time.Hour))
	result = sharing.Import(late, code)
	invalid, ok = result.(sharing.ImportInvalid)
	require.True(t, ok, "expected ImportInvalid, got %#v", result)
	assert.Equal(t, sharing.ReasonExpired, invalid.Reason)

	// the failed attempts mustn't have spent the redemption
	_, ok = sharing.Validate(ctx, code).(sharing.ValidateValid)
	assert.True(t, ok)
}

func TestImportAppliesContentFilters(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	require.NoError(t, library.AddContentFilter(ctx, models.FilterKindChannel, "chan-1"))
	require.NoError(t, library.AddContentFilter(ctx, models.FilterKindArtist, "artist-2"))

	result := sharing.Import(ctx, code)
	success, ok := result.(sharing.ImportSuccess)
	require.True(t, ok, "expected ImportSuccess, got %#v", result)

	// vid-1 and vid-2 are on chan-1, trk-2 is by artist-2
	assert.Equal(t, 2, success.ItemsImported)
	assert.Equal(t, 3, success.ItemsFiltered)

	imported, err := library.GetPlaylist(ctx, success.PlaylistID)
	require.NoError(t, err)
	assert.Equal(t, 1, imported.VideoCount)
	assert.Equal(t, 1, imported.TrackCount)
	require.Len(t, imported.Videos, 1)
	assert.Equal(t, "vid-3", imported.Videos[0].ID)
	require.Len(t, imported.Tracks, 1)
	assert.Equal(t, "trk-1", imported.Tracks[0].ID)
}

func TestImportWithEverythingFilteredStillSucceeds(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	for _, refID := range []string{"chan-1", "chan-2"} {
		require.NoError(t, library.AddContentFilter(ctx, models.FilterKindChannel, refID))
	}
	for _, refID := range []string{"artist-1", "artist-2"} {
		require.NoError(t, library.AddContentFilter(ctx, models.FilterKindArtist, refID))
	}

	result := sharing.Import(ctx, code)
	success, ok := result.(sharing.ImportSuccess)
	require.True(t, ok, "expected ImportSuccess, got %#v", result)

	assert.Equal(t, 0, success.ItemsImported)
	assert.Equal(t, 5, success.ItemsFiltered)

	imported, err := library.GetPlaylist(ctx, success.PlaylistID)
	require.NoError(t, err)
	assert.Equal(t, 0, imported.TotalItemCount())
}

func TestImportReusesExistingCatalogRows(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	// the recipient already has vid-1 under a locally edited title
	_, err := ctxdb.GetDB(ctx).Exec("update videos set title = ? where id = ?", "My Local Title", "vid-1")
	require.NoError(t, err)

	_, ok := sharing.Import(ctx, code).(sharing.ImportSuccess)
	require.True(t, ok)

	video, err := library.GetVideo(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, "My Local Title", video.Title, "import shouldn't clobber an existing catalog row")
}

func TestReshareRotatesTheCode(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)

	first := mustShare(t, ctx, playlistID)
	second := mustShare(t, ctx, playlistID)
	require.NotEqual(t, first, second)

	result := sharing.Validate(ctx, first)
	invalid, ok := result.(sharing.ValidateInvalid)
	require.True(t, ok, "the old code should stop validating, got %#v", result)
	assert.Equal(t, sharing.ReasonNotFound, invalid.Reason)

	_, ok = sharing.Validate(ctx, second).(sharing.ValidateValid)
	assert.True(t, ok)
}

func TestSnapshotSurvivesSourceMutation(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	// gut the source playlist after sharing
	require.NoError(t, library.RemoveVideoFromPlaylist(ctx, playlistID, "vid-1"))
	require.NoError(t, library.DeleteVideo(ctx, "vid-2"))

	data, err := sharing.GetSharedData(ctx, code)
	require.NoError(t, err)
	assert.Len(t, data.Videos, 3, "the snapshot is immutable once created")
	assert.Len(t, data.Tracks, 2)
	assert.Equal(t, "Video Two", data.Videos[1].Title)

	result := sharing.Import(ctx, code)
	success, ok := result.(sharing.ImportSuccess)
	require.True(t, ok, "expected ImportSuccess, got %#v", result)
	assert.Equal(t, 5, success.ItemsImported)
}

func TestOwnSharesAndRevoke(t *testing.T) {
	ctx := testContext(t)
	playlistID := seedPlaylist(t, ctx)
	code := mustShare(t, ctx, playlistID)

	shares, err := sharing.OwnShares(ctx)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, code, shares[0].ShareCode)
	assert.Equal(t, "fam-123", shares[0].SharedByFamilyID)

	require.NoError(t, sharing.Revoke(ctx, code))

	result := sharing.Validate(ctx, code)
	invalid, ok := result.(sharing.ValidateInvalid)
	require.True(t, ok, "expected ValidateInvalid, got %#v", result)
	assert.Equal(t, sharing.ReasonNotFound, invalid.Reason)

	playlist, err := library.GetPlaylist(ctx, playlistID)
	require.NoError(t, err)
	assert.False(t, playlist.IsShared())

	shares, err = sharing.OwnShares(ctx)
	require.NoError(t, err)
	assert.Empty(t, shares)

	assert.ErrorIs(t, sharing.Revoke(ctx, code), sql.ErrNoRows)
}
