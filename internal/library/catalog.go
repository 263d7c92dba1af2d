package library

import (
	"context"
	"database/sql"
	"fmt"

	"fknsrs.biz/p/kidsbeats/internal/ctxclock"
	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/models"
)

// The catalog tables are keyed by the provider's own string ids, so there's
// no autoincrement column for the record mapper to lean on; these are plain
// SQL upserts instead.

func UpsertVideo(ctx context.Context, video *models.Video) error {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("library.UpsertVideo: %w", err)
	}

	if video.CreatedAt.IsZero() {
		video.CreatedAt = now
	}

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into videos (id, created_at, title, channel_id, channel_name, thumbnail_url, duration_seconds)
			values (?, ?, ?, ?, ?, ?, ?)
			on conflict (id) do update set
				title = excluded.title,
				channel_id = excluded.channel_id,
				channel_name = excluded.channel_name,
				thumbnail_url = excluded.thumbnail_url,
				duration_seconds = excluded.duration_seconds
		`, video.ID, video.CreatedAt, video.Title, video.ChannelID, video.ChannelName, video.ThumbnailURL, video.DurationSeconds); err != nil {
			return fmt.Errorf("library.UpsertVideo: %w", err)
		}

		return nil
	})
}

func UpsertTrack(ctx context.Context, track *models.Track) error {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("library.UpsertTrack: %w", err)
	}

	if track.CreatedAt.IsZero() {
		track.CreatedAt = now
	}

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into music_tracks (id, created_at, title, artist_id, artist_name, album_name, thumbnail_url, duration_seconds)
			values (?, ?, ?, ?, ?, ?, ?, ?)
			on conflict (id) do update set
				title = excluded.title,
				artist_id = excluded.artist_id,
				artist_name = excluded.artist_name,
				album_name = excluded.album_name,
				thumbnail_url = excluded.thumbnail_url,
				duration_seconds = excluded.duration_seconds
		`, track.ID, track.CreatedAt, track.Title, track.ArtistID, track.ArtistName, track.AlbumName, track.ThumbnailURL, track.DurationSeconds); err != nil {
			return fmt.Errorf("library.UpsertTrack: %w", err)
		}

		return nil
	})
}

func GetVideo(ctx context.Context, id string) (*models.Video, error) {
	var v models.Video

	err := ctxdb.GetDB(ctx).QueryRowContext(ctx,
		"select id, created_at, title, channel_id, channel_name, thumbnail_url, duration_seconds from videos where id = ?", id,
	).Scan(&v.ID, &v.CreatedAt, &v.Title, &v.ChannelID, &v.ChannelName, &v.ThumbnailURL, &v.DurationSeconds)
	if err != nil {
		return nil, err
	}

	return &v, nil
}

func GetTrack(ctx context.Context, id string) (*models.Track, error) {
	var t models.Track

	err := ctxdb.GetDB(ctx).QueryRowContext(ctx,
		"select id, created_at, title, artist_id, artist_name, album_name, thumbnail_url, duration_seconds from music_tracks where id = ?", id,
	).Scan(&t.ID, &t.CreatedAt, &t.Title, &t.ArtistID, &t.ArtistName, &t.AlbumName, &t.ThumbnailURL, &t.DurationSeconds)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// DeleteVideo removes a video from the catalog only. Membership rows that
// point at it are left in place, so a playlist that contained it keeps its
// shape; the entry just has nothing to display.
func DeleteVideo(ctx context.Context, id string) error {
	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "delete from videos where id = ?", id)
		if err != nil {
			return fmt.Errorf("library.DeleteVideo: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("library.DeleteVideo: %w", err)
		}
		if n == 0 {
			return sql.ErrNoRows
		}

		return nil
	})
}

func DeleteTrack(ctx context.Context, id string) error {
	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "delete from music_tracks where id = ?", id)
		if err != nil {
			return fmt.Errorf("library.DeleteTrack: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("library.DeleteTrack: %w", err)
		}
		if n == 0 {
			return sql.ErrNoRows
		}

		return nil
	})
}
