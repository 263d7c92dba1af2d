package sharing

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/kidsbeats/internal/ctxclock"
	"fknsrs.biz/p/kidsbeats/internal/ctxconfig"
	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/internal/library"
	"fknsrs.biz/p/kidsbeats/models"
)

// codeAlphabet leaves out 0, 1, I and O, since the codes get read out loud
// and typed by children.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6

	defaultMaxRedeems = 10

	maxCodeAttempts = 5
)

func generateCode() (string, error) {
	b := make([]byte, codeLength)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("sharing.generateCode: %w", err)
		}

		b[i] = codeAlphabet[n.Int64()]
	}

	return string(b), nil
}

// Share snapshots a playlist into the share tables and hands back a code. A
// playlist that's already shared gets a fresh code and a fresh snapshot; the
// old share is deactivated so the old code stops validating.
func Share(ctx context.Context, playlistID int) ShareResult {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return ShareError{Message: err.Error()}
	}

	cfg := ctxconfig.GetConfig(ctx)

	playlist, err := library.GetPlaylist(ctx, playlistID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ShareError{Reason: ReasonNotFound, Message: "playlist not found"}
		}

		return ShareError{Message: err.Error()}
	}

	if len(playlist.Videos) == 0 && len(playlist.Tracks) == 0 {
		return ShareError{Reason: ReasonEmptyPlaylist, Message: "playlist has no items to share"}
	}

	if cfg.ChildName == "" || cfg.FamilyID == "" {
		return ShareError{Reason: ReasonNotConfigured, Message: "child name and family id must be configured before sharing"}
	}

	maxRedeems := cfg.ShareMaxRedeems
	if maxRedeems <= 0 {
		maxRedeems = defaultMaxRedeems
	}

	share := models.SharedPlaylist{
		PlaylistID:        playlist.ID,
		PlaylistName:      playlist.Name,
		Description:       playlist.Description,
		Color:             playlist.Color,
		SharedByChildName: cfg.ChildName,
		SharedByFamilyID:  cfg.FamilyID,
		SharedAt:          now,
		ExpiresAt:         now.Add(cfg.ShareValidity()),
		MaxRedeems:        maxRedeems,
		IsActive:          true,
	}

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "update shared_playlists set is_active = 0 where playlist_id = ? and is_active = 1", playlist.ID); err != nil {
			return fmt.Errorf("sharing.Share: could not deactivate previous shares: %w", err)
		}

		for attempt := 0; ; attempt++ {
			code, err := generateCode()
			if err != nil {
				return err
			}

			var taken int
			if err := tx.QueryRowContext(ctx, "select count(*) from shared_playlists where share_code = ?", code).Scan(&taken); err != nil {
				return fmt.Errorf("sharing.Share: %w", err)
			}

			if taken == 0 {
				share.ShareCode = code
				break
			}

			if attempt+1 >= maxCodeAttempts {
				return fmt.Errorf("sharing.Share: couldn't find a free share code after %d attempts", maxCodeAttempts)
			}
		}

		if err := sorm.CreateRecord(ctx, tx, &share); err != nil {
			return fmt.Errorf("sharing.Share: could not create share record: %w", err)
		}

		for i, v := range playlist.Videos {
			if _, err := tx.ExecContext(ctx, `
				insert into shared_playlist_videos (share_code, video_id, position, title, channel_id, channel_name, thumbnail_url, duration_seconds)
				values (?, ?, ?, ?, ?, ?, ?, ?)
			`, share.ShareCode, v.ID, i, v.Title, v.ChannelID, v.ChannelName, v.ThumbnailURL, v.DurationSeconds); err != nil {
				return fmt.Errorf("sharing.Share: could not snapshot video: %w", err)
			}
		}

		for i, tr := range playlist.Tracks {
			if _, err := tx.ExecContext(ctx, `
				insert into shared_playlist_tracks (share_code, track_id, position, title, artist_id, artist_name, album_name, thumbnail_url, duration_seconds)
				values (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, share.ShareCode, tr.ID, i, tr.Title, tr.ArtistID, tr.ArtistName, tr.AlbumName, tr.ThumbnailURL, tr.DurationSeconds); err != nil {
				return fmt.Errorf("sharing.Share: could not snapshot track: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, "update video_playlists set share_code = ?, shared_at = ?, updated_at = ? where id = ?", share.ShareCode, now, now, playlist.ID); err != nil {
			return fmt.Errorf("sharing.Share: could not mark playlist shared: %w", err)
		}

		return nil
	}); err != nil {
		return ShareError{Message: err.Error()}
	}

	return ShareSuccess{ShareCode: share.ShareCode}
}

func findActiveShare(ctx context.Context, db sorm.Querier, code string) (*models.SharedPlaylist, error) {
	var share models.SharedPlaylist
	if err := sorm.FindFirstWhere(ctx, db, &share, "where share_code = ? and is_active = 1", code); err != nil {
		return nil, err
	}

	return &share, nil
}

// Validate checks a code and, if it's redeemable, returns a preview with
// item counts so the recipient can decide before importing. The checks run
// in a fixed order: existence, then expiry, then the redemption limit.
func Validate(ctx context.Context, code string) ValidateResult {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return ValidateError{Message: err.Error()}
	}

	db := ctxdb.GetDB(ctx)

	share, err := findActiveShare(ctx, db, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return ValidateInvalid{Reason: ReasonNotFound}
		}

		return ValidateError{Message: err.Error()}
	}

	if share.IsExpired(now) {
		return ValidateInvalid{Reason: ReasonExpired}
	}

	if share.RedeemCount >= share.MaxRedeems {
		return ValidateInvalid{Reason: ReasonRedemptionLimit}
	}

	var videoCount, trackCount int
	if err := db.QueryRowContext(ctx, "select count(*) from shared_playlist_videos where share_code = ?", code).Scan(&videoCount); err != nil {
		return ValidateError{Message: err.Error()}
	}
	if err := db.QueryRowContext(ctx, "select count(*) from shared_playlist_tracks where share_code = ?", code).Scan(&trackCount); err != nil {
		return ValidateError{Message: err.Error()}
	}

	return ValidateValid{Preview: models.SharedPlaylistPreview{
		ShareCode:         share.ShareCode,
		PlaylistName:      share.PlaylistName,
		Description:       share.Description,
		SharedByChildName: share.SharedByChildName,
		VideoCount:        videoCount,
		TrackCount:        trackCount,
		ExpiresAt:         share.ExpiresAt,
		RedeemCount:       share.RedeemCount,
		MaxRedeems:        share.MaxRedeems,
	}}
}

// Import redeems a code into a new local playlist. The redemption is spent
// with a conditional update, so two devices racing on the last redemption
// can't both win. Items whose channel or artist is blocked by a content
// filter are skipped and counted; a share where everything is filtered
// still imports, it just lands empty.
func Import(ctx context.Context, code string) ImportResult {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return ImportError{Message: err.Error()}
	}

	var result ImportSuccess

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		share, err := findActiveShare(ctx, tx, code)
		if err != nil {
			return err
		}

		if share.IsExpired(now) {
			return errShareExpired
		}

		res, err := tx.ExecContext(ctx, "update shared_playlists set redeem_count = redeem_count + 1 where id = ? and redeem_count < max_redeems", share.ID)
		if err != nil {
			return fmt.Errorf("sharing.Import: could not spend redemption: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sharing.Import: %w", err)
		}
		if n == 0 {
			return errShareExhausted
		}

		videos, err := snapshotVideos(ctx, tx, code)
		if err != nil {
			return err
		}

		tracks, err := snapshotTracks(ctx, tx, code)
		if err != nil {
			return err
		}

		playlist := models.Playlist{
			CreatedAt:    now,
			UpdatedAt:    now,
			Name:         share.PlaylistName,
			Description:  share.Description,
			Color:        share.Color,
			IsImported:   true,
			ImportedFrom: &share.SharedByChildName,
			ImportedAt:   &now,
		}

		if err := sorm.CreateRecord(ctx, tx, &playlist); err != nil {
			return fmt.Errorf("sharing.Import: could not create playlist record: %w", err)
		}

		position := 0
		for _, v := range videos {
			blocked, err := isFiltered(ctx, tx, models.FilterKindChannel, v.ChannelID)
			if err != nil {
				return err
			}
			if blocked {
				result.ItemsFiltered++
				continue
			}

			if _, err := tx.ExecContext(ctx, `
				insert or ignore into videos (id, created_at, title, channel_id, channel_name, thumbnail_url, duration_seconds)
				values (?, ?, ?, ?, ?, ?, ?)
			`, v.VideoID, now, v.Title, v.ChannelID, v.ChannelName, v.ThumbnailURL, v.DurationSeconds); err != nil {
				return fmt.Errorf("sharing.Import: could not import video: %w", err)
			}

			if _, err := tx.ExecContext(ctx,
				"insert into playlist_videos (playlist_id, video_id, position, added_at) values (?, ?, ?, ?)",
				playlist.ID, v.VideoID, position, now,
			); err != nil {
				return fmt.Errorf("sharing.Import: could not add imported video: %w", err)
			}

			position++
			result.ItemsImported++
			playlist.VideoCount++
		}

		position = 0
		for _, tr := range tracks {
			blocked, err := isFiltered(ctx, tx, models.FilterKindArtist, tr.ArtistID)
			if err != nil {
				return err
			}
			if blocked {
				result.ItemsFiltered++
				continue
			}

			if _, err := tx.ExecContext(ctx, `
				insert or ignore into music_tracks (id, created_at, title, artist_id, artist_name, album_name, thumbnail_url, duration_seconds)
				values (?, ?, ?, ?, ?, ?, ?, ?)
			`, tr.TrackID, now, tr.Title, tr.ArtistID, tr.ArtistName, tr.AlbumName, tr.ThumbnailURL, tr.DurationSeconds); err != nil {
				return fmt.Errorf("sharing.Import: could not import track: %w", err)
			}

			if _, err := tx.ExecContext(ctx,
				"insert into video_playlist_tracks (playlist_id, track_id, position, added_at) values (?, ?, ?, ?)",
				playlist.ID, tr.TrackID, position, now,
			); err != nil {
				return fmt.Errorf("sharing.Import: could not add imported track: %w", err)
			}

			position++
			result.ItemsImported++
			playlist.TrackCount++
		}

		if _, err := tx.ExecContext(ctx,
			"update video_playlists set video_count = ?, track_count = ? where id = ?",
			playlist.VideoCount, playlist.TrackCount, playlist.ID,
		); err != nil {
			return fmt.Errorf("sharing.Import: could not set imported counts: %w", err)
		}

		result.PlaylistID = playlist.ID

		return nil
	}); err != nil {
		switch err {
		case sql.ErrNoRows:
			return ImportInvalid{Reason: ReasonNotFound}
		case errShareExpired:
			return ImportInvalid{Reason: ReasonExpired}
		case errShareExhausted:
			return ImportInvalid{Reason: ReasonRedemptionLimit}
		default:
			return ImportError{Message: err.Error()}
		}
	}

	return result
}

var (
	errShareExpired   = fmt.Errorf("sharing: share has expired")
	errShareExhausted = fmt.Errorf("sharing: share redemption limit reached")
)

func isFiltered(ctx context.Context, tx *sql.Tx, kind, refID string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, "select count(*) from content_filters where kind = ? and ref_id = ?", kind, refID).Scan(&n); err != nil {
		return false, fmt.Errorf("sharing.isFiltered: %w", err)
	}

	return n > 0, nil
}

func snapshotVideos(ctx context.Context, tx *sql.Tx, code string) ([]models.SharedVideoInfo, error) {
	rows, err := tx.QueryContext(ctx, `
		select video_id, title, channel_id, channel_name, thumbnail_url, duration_seconds
		from shared_playlist_videos
		where share_code = ?
		order by position asc
	`, code)
	if err != nil {
		return nil, fmt.Errorf("sharing.snapshotVideos: %w", err)
	}
	defer rows.Close()

	var videos []models.SharedVideoInfo
	for rows.Next() {
		var v models.SharedVideoInfo
		if err := rows.Scan(&v.VideoID, &v.Title, &v.ChannelID, &v.ChannelName, &v.ThumbnailURL, &v.DurationSeconds); err != nil {
			return nil, fmt.Errorf("sharing.snapshotVideos: %w", err)
		}
		videos = append(videos, v)
	}

	return videos, rows.Err()
}

func snapshotTracks(ctx context.Context, tx *sql.Tx, code string) ([]models.SharedTrackInfo, error) {
	rows, err := tx.QueryContext(ctx, `
		select track_id, title, artist_id, artist_name, album_name, thumbnail_url, duration_seconds
		from shared_playlist_tracks
		where share_code = ?
		order by position asc
	`, code)
	if err != nil {
		return nil, fmt.Errorf("sharing.snapshotTracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.SharedTrackInfo
	for rows.Next() {
		var tr models.SharedTrackInfo
		if err := rows.Scan(&tr.TrackID, &tr.Title, &tr.ArtistID, &tr.ArtistName, &tr.AlbumName, &tr.ThumbnailURL, &tr.DurationSeconds); err != nil {
			return nil, fmt.Errorf("sharing.snapshotTracks: %w", err)
		}
		tracks = append(tracks, tr)
	}

	return tracks, rows.Err()
}

// GetSharedData returns the full snapshot for a code, item lists included.
// Unlike Validate it doesn't gate on expiry; the sharer can always see what
// they shared.
func GetSharedData(ctx context.Context, code string) (*models.SharedPlaylistData, error) {
	db := ctxdb.GetDB(ctx)

	share, err := findActiveShare(ctx, db, code)
	if err != nil {
		return nil, err
	}

	var data models.SharedPlaylistData
	data.ShareCode = share.ShareCode
	data.PlaylistName = share.PlaylistName
	data.Description = share.Description
	data.Color = share.Color
	data.SharedByChildName = share.SharedByChildName
	data.SharedByFamilyID = share.SharedByFamilyID

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		videos, err := snapshotVideos(ctx, tx, code)
		if err != nil {
			return err
		}
		data.Videos = videos

		tracks, err := snapshotTracks(ctx, tx, code)
		if err != nil {
			return err
		}
		data.Tracks = tracks

		return nil
	}); err != nil {
		return nil, err
	}

	return &data, nil
}

// OwnShares lists this family's still-active shares, newest first.
func OwnShares(ctx context.Context) ([]models.SharedPlaylist, error) {
	cfg := ctxconfig.GetConfig(ctx)

	var shares []models.SharedPlaylist
	if err := sorm.FindWhere(ctx, ctxdb.GetDB(ctx), &shares, "where shared_by_family_id = ? and is_active = 1 order by shared_at desc", cfg.FamilyID); err != nil {
		return nil, fmt.Errorf("sharing.OwnShares: %w", err)
	}

	return shares, nil
}

// Revoke deactivates a share so its code stops validating. The playlist's
// own share fields are cleared too.
func Revoke(ctx context.Context, code string) error {
	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "update shared_playlists set is_active = 0 where share_code = ? and is_active = 1", code)
		if err != nil {
			return fmt.Errorf("sharing.Revoke: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sharing.Revoke: %w", err)
		}
		if n == 0 {
			return sql.ErrNoRows
		}

		if _, err := tx.ExecContext(ctx, "update video_playlists set share_code = null, shared_at = null where share_code = ?", code); err != nil {
			return fmt.Errorf("sharing.Revoke: %w", err)
		}

		return nil
	})
}
