// Package library owns the playlist store. The cached counts on a playlist
// row (video_count, track_count) are maintained here, always in the same
// transaction as the membership change they reflect, so they can't drift
// from the join tables.
package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fknsrs.biz/p/sorm"
	"fknsrs.biz/p/sorm/qsorm"
	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/gost/godata"

	"fknsrs.biz/p/kidsbeats/internal/ctxclock"
	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/internal/godatautil"
	"fknsrs.biz/p/kidsbeats/models"
)

var (
	ErrInvalidColor = fmt.Errorf("library: invalid playlist color")
)

func CreatePlaylist(ctx context.Context, name string, description *string, color models.PlaylistColor) (*models.Playlist, error) {
	if color == "" {
		color = models.ColorPink
	}
	if !color.Valid() {
		return nil, fmt.Errorf("library.CreatePlaylist: %q: %w", color, ErrInvalidColor)
	}

	now, err := ctxclock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("library.CreatePlaylist: %w", err)
	}

	playlist := models.Playlist{
		CreatedAt:   now,
		UpdatedAt:   now,
		Name:        name,
		Description: description,
		Color:       color,
	}

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		return sorm.CreateRecord(ctx, tx, &playlist)
	}); err != nil {
		return nil, fmt.Errorf("library.CreatePlaylist: could not create playlist record: %w", err)
	}

	return &playlist, nil
}

// GetPlaylist loads a playlist with its videos and tracks in position order.
// Membership rows whose catalog item has been deleted are skipped; they
// still occupy their position slot, the display data is just gone.
func GetPlaylist(ctx context.Context, id int) (*models.Playlist, error) {
	db := ctxdb.GetDB(ctx)

	var playlist models.Playlist
	if err := sorm.FindFirstWhere(ctx, db, &playlist, "where id = ?", id); err != nil {
		return nil, err
	}

	videos, err := playlistVideos(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("library.GetPlaylist: %w", err)
	}
	playlist.Videos = videos

	tracks, err := playlistTracks(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("library.GetPlaylist: %w", err)
	}
	playlist.Tracks = tracks

	return &playlist, nil
}

func playlistVideos(ctx context.Context, db *sql.DB, playlistID int) ([]models.Video, error) {
	rows, err := db.QueryContext(ctx, `
		select v.id, v.created_at, v.title, v.channel_id, v.channel_name, v.thumbnail_url, v.duration_seconds
		from playlist_videos pv
		join videos v on v.id = pv.video_id
		where pv.playlist_id = ?
		order by pv.position asc
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("library.playlistVideos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var v models.Video
		if err := rows.Scan(&v.ID, &v.CreatedAt, &v.Title, &v.ChannelID, &v.ChannelName, &v.ThumbnailURL, &v.DurationSeconds); err != nil {
			return nil, fmt.Errorf("library.playlistVideos: %w", err)
		}
		videos = append(videos, v)
	}

	return videos, rows.Err()
}

func playlistTracks(ctx context.Context, db *sql.DB, playlistID int) ([]models.Track, error) {
	rows, err := db.QueryContext(ctx, `
		select t.id, t.created_at, t.title, t.artist_id, t.artist_name, t.album_name, t.thumbnail_url, t.duration_seconds
		from video_playlist_tracks pt
		join music_tracks t on t.id = pt.track_id
		where pt.playlist_id = ?
		order by pt.position asc
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("library.playlistTracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var tr models.Track
		if err := rows.Scan(&tr.ID, &tr.CreatedAt, &tr.Title, &tr.ArtistID, &tr.ArtistName, &tr.AlbumName, &tr.ThumbnailURL, &tr.DurationSeconds); err != nil {
			return nil, fmt.Errorf("library.playlistTracks: %w", err)
		}
		tracks = append(tracks, tr)
	}

	return tracks, rows.Err()
}

// ListPlaylists accepts an OData query for filtering and ordering, the same
// surface the rest of the read endpoints use. Without an explicit order it
// returns most recently updated first.
func ListPlaylists(ctx context.Context, q *godata.GoDataQuery) ([]models.Playlist, error) {
	condition, err := godatautil.MakeCondition(q, models.PlaylistTable)
	if err != nil {
		return nil, fmt.Errorf("library.ListPlaylists: %w", err)
	}

	orders, err := godatautil.MakeOrders(q, models.PlaylistTable, sb.OrderDesc(models.PlaylistTable.C("UpdatedAt")))
	if err != nil {
		return nil, fmt.Errorf("library.ListPlaylists: %w", err)
	}

	var playlists []models.Playlist
	if err := qsorm.FindWhere(
		ctx,
		ctxdb.GetDB(ctx),
		&playlists,
		condition,
		orders,
		godatautil.MakeOffsetLimit(q, 0, 1000),
	); err != nil {
		return nil, fmt.Errorf("library.ListPlaylists: %w", err)
	}

	return playlists, nil
}

// UpdatePlaylist saves the editable fields of an existing playlist and bumps
// updated_at. The cached counts and sharing fields on the record are written
// as-is, so callers should start from a freshly loaded record.
func UpdatePlaylist(ctx context.Context, playlist *models.Playlist) error {
	if !playlist.Color.Valid() {
		return fmt.Errorf("library.UpdatePlaylist: %q: %w", playlist.Color, ErrInvalidColor)
	}

	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("library.UpdatePlaylist: %w", err)
	}

	playlist.UpdatedAt = now

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		return sorm.SaveRecord(ctx, tx, playlist)
	}); err != nil {
		return fmt.Errorf("library.UpdatePlaylist: could not save playlist record: %w", err)
	}

	return nil
}

// DeletePlaylist removes a playlist and all of its membership rows. The
// catalog items themselves are left alone; they may belong to other
// playlists.
func DeletePlaylist(ctx context.Context, id int) error {
	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, q := range []string{
			"delete from playlist_videos where playlist_id = ?",
			"delete from video_playlist_tracks where playlist_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("library.DeletePlaylist: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, "delete from video_playlists where id = ?", id)
		if err != nil {
			return fmt.Errorf("library.DeletePlaylist: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("library.DeletePlaylist: %w", err)
		}
		if n == 0 {
			return sql.ErrNoRows
		}

		return nil
	})
}

// AddVideoToPlaylist appends a video at the end of a playlist. Adding a
// video that's already a member is a no-op; the counts don't move.
func AddVideoToPlaylist(ctx context.Context, playlistID int, videoID string) error {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("library.AddVideoToPlaylist: %w", err)
	}

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		var playlist models.Playlist
		if err := sorm.FindFirstWhere(ctx, tx, &playlist, "where id = ?", playlistID); err != nil {
			return err
		}

		var exists int
		if err := tx.QueryRowContext(ctx, "select count(*) from videos where id = ?", videoID).Scan(&exists); err != nil {
			return fmt.Errorf("library.AddVideoToPlaylist: %w", err)
		}
		if exists == 0 {
			return sql.ErrNoRows
		}

		var position int
		if err := tx.QueryRowContext(ctx, "select coalesce(max(position) + 1, 0) from playlist_videos where playlist_id = ?", playlistID).Scan(&position); err != nil {
			return fmt.Errorf("library.AddVideoToPlaylist: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			"insert or ignore into playlist_videos (playlist_id, video_id, position, added_at) values (?, ?, ?, ?)",
			playlistID, videoID, position, now,
		)
		if err != nil {
			return fmt.Errorf("library.AddVideoToPlaylist: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("library.AddVideoToPlaylist: %w", err)
		}
		if n == 0 {
			return nil
		}

		return bumpCount(ctx, tx, playlistID, "video_count", +1, now)
	})
}

// RemoveVideoFromPlaylist removes a membership row. Removing a video that
// isn't a member is a no-op. Remaining positions keep their values; order is
// what matters, not density.
func RemoveVideoFromPlaylist(ctx context.Context, playlistID int, videoID string) error {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("library.RemoveVideoFromPlaylist: %w", err)
	}

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "delete from playlist_videos where playlist_id = ? and video_id = ?", playlistID, videoID)
		if err != nil {
			return fmt.Errorf("library.RemoveVideoFromPlaylist: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("library.RemoveVideoFromPlaylist: %w", err)
		}
		if n == 0 {
			return nil
		}

		return bumpCount(ctx, tx, playlistID, "video_count", -1, now)
	})
}

func AddTrackToPlaylist(ctx context.Context, playlistID int, trackID string) error {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("library.AddTrackToPlaylist: %w", err)
	}

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		var playlist models.Playlist
		if err := sorm.FindFirstWhere(ctx, tx, &playlist, "where id = ?", playlistID); err != nil {
			return err
		}

		var exists int
		if err := tx.QueryRowContext(ctx, "select count(*) from music_tracks where id = ?", trackID).Scan(&exists); err != nil {
			return fmt.Errorf("library.AddTrackToPlaylist: %w", err)
		}
		if exists == 0 {
			return sql.ErrNoRows
		}

		var position int
		if err := tx.QueryRowContext(ctx, "select coalesce(max(position) + 1, 0) from video_playlist_tracks where playlist_id = ?", playlistID).Scan(&position); err != nil {
			return fmt.Errorf("library.AddTrackToPlaylist: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			"insert or ignore into video_playlist_tracks (playlist_id, track_id, position, added_at) values (?, ?, ?, ?)",
			playlistID, trackID, position, now,
		)
		if err != nil {
			return fmt.Errorf("library.AddTrackToPlaylist: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("library.AddTrackToPlaylist: %w", err)
		}
		if n == 0 {
			return nil
		}

		return bumpCount(ctx, tx, playlistID, "track_count", +1, now)
	})
}

func RemoveTrackFromPlaylist(ctx context.Context, playlistID int, trackID string) error {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("library.RemoveTrackFromPlaylist: %w", err)
	}

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "delete from video_playlist_tracks where playlist_id = ? and track_id = ?", playlistID, trackID)
		if err != nil {
			return fmt.Errorf("library.RemoveTrackFromPlaylist: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("library.RemoveTrackFromPlaylist: %w", err)
		}
		if n == 0 {
			return nil
		}

		return bumpCount(ctx, tx, playlistID, "track_count", -1, now)
	})
}

func bumpCount(ctx context.Context, tx *sql.Tx, playlistID int, column string, delta int, now time.Time) error {
	q := fmt.Sprintf("update video_playlists set %s = %s + ?, updated_at = ? where id = ?", column, column)

	if _, err := tx.ExecContext(ctx, q, delta, now, playlistID); err != nil {
		return fmt.Errorf("library.bumpCount: %w", err)
	}

	return nil
}

// RecountPlaylist recomputes the cached counts from the membership tables.
// Used by the background recount job as a safety net; under normal operation
// it should always be a no-op.
func RecountPlaylist(ctx context.Context, playlistID int) error {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("library.RecountPlaylist: %w", err)
	}

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update video_playlists set
				video_count = (select count(*) from playlist_videos where playlist_id = video_playlists.id),
				track_count = (select count(*) from video_playlist_tracks where playlist_id = video_playlists.id),
				updated_at = ?
			where id = ?
		`, now, playlistID)
		if err != nil {
			return fmt.Errorf("library.RecountPlaylist: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("library.RecountPlaylist: %w", err)
		}
		if n == 0 {
			return sql.ErrNoRows
		}

		return nil
	})
}
