package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fknsrs.biz/p/kidsbeats/internal/ctxlogger"
)

const (
	// CurrentVersion is recorded in pragma user_version once the schema is up
	// to date.
	CurrentVersion = 10
	// OldestMigratableVersion is the oldest on-disk version Run will touch.
	OldestMigratableVersion = 7
)

// Run brings the database schema up to CurrentVersion. A brand new database
// (user_version 0) gets the current schema in one shot; anything between
// OldestMigratableVersion and CurrentVersion is stepped forward one version
// at a time, each step and its version bump inside a single transaction, so
// a failure partway leaves the store at a well-defined intermediate version.
// Any other version is an error and nothing is touched.
func Run(ctx context.Context, db *sql.DB) error {
	l := ctxlogger.GetLogger(ctx).WithField("component", "migrate")

	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}

	if version == CurrentVersion {
		l.WithField("version", version).Debug("schema already current")
		return nil
	}

	if version == 0 {
		l.WithField("version", CurrentVersion).Info("creating schema")

		return inTx(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaVersion10); err != nil {
				return fmt.Errorf("migrate.Run: couldn't create schema: %w", err)
			}

			return setUserVersion(ctx, tx, CurrentVersion)
		})
	}

	if version < OldestMigratableVersion || version > CurrentVersion {
		return fmt.Errorf("migrate.Run: database is at version %d; can only migrate versions %d through %d", version, OldestMigratableVersion, CurrentVersion)
	}

	for v := version; v < CurrentVersion; v++ {
		step, ok := steps[v]
		if !ok {
			return fmt.Errorf("migrate.Run: no step from version %d", v)
		}

		l.WithField("from", v).WithField("to", v+1).Info("applying migration")

		if err := inTx(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			if err := step(ctx, tx); err != nil {
				return fmt.Errorf("migrate.Run: step %d to %d failed: %w", v, v+1, err)
			}

			return setUserVersion(ctx, tx, v+1)
		}); err != nil {
			return err
		}
	}

	return nil
}

var steps = map[int]func(ctx context.Context, tx *sql.Tx) error{
	7: migrate7To8,
	8: migrate8To9,
	9: migrate9To10,
}

// migrate7To8 is purely additive: the sharing columns on playlists, plus the
// share snapshot tables. Existing rows pick up the column defaults, so every
// pre-existing playlist comes out unshared and not imported.
func migrate7To8(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		"alter table playlists add column share_code text default null",
		"alter table playlists add column shared_at timestamp default null",
		"alter table playlists add column is_imported integer not null default 0",
		"alter table playlists add column imported_from text default null",
		"alter table playlists add column imported_at timestamp default null",
		sharingTables,
	}

	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}

	return nil
}

// migrate8To9 renames playlists to video_playlists to make room for music,
// and adds the track membership table. The rename carries rows, the rowid
// sequence, and the new v8 columns along with it; the foreign key clause
// inside playlist_videos keeps working because SQLite rewrites references on
// rename.
func migrate8To9(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		"alter table playlists rename to video_playlists",
		"alter table video_playlists add column track_count integer not null default 0",
		`create table video_playlist_tracks (
			playlist_id integer not null,
			track_id text not null,
			position integer not null,
			added_at timestamp not null,
			primary key (playlist_id, track_id),
			foreign key (playlist_id) references video_playlists (id) on delete cascade,
			foreign key (track_id) references music_tracks (id) on delete cascade
		)`,
		"create index if not exists index_video_playlist_tracks_playlist_id on video_playlist_tracks (playlist_id)",
		"create index if not exists index_video_playlist_tracks_track_id on video_playlist_tracks (track_id)",
	}

	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}

	return nil
}

// migrate9To10 corrects the item-side foreign key actions on both membership
// tables from cascade to no action. SQLite can't alter a constraint in
// place, so each table is rebuilt and swapped.
func migrate9To10(ctx context.Context, tx *sql.Tx) error {
	if err := rebuildTable(ctx, tx, rebuildSpec{
		Table: "playlist_videos",
		CreateNew: `create table playlist_videos_new (
			playlist_id integer not null,
			video_id text not null,
			position integer not null,
			added_at timestamp not null,
			primary key (playlist_id, video_id),
			foreign key (playlist_id) references video_playlists (id) on delete cascade,
			foreign key (video_id) references videos (id) on delete no action
		)`,
		Columns: []string{"playlist_id", "video_id", "position", "added_at"},
		Indexes: []string{
			"create index if not exists index_playlist_videos_playlist_id on playlist_videos (playlist_id)",
			"create index if not exists index_playlist_videos_video_id on playlist_videos (video_id)",
		},
	}); err != nil {
		return err
	}

	return rebuildTable(ctx, tx, rebuildSpec{
		Table: "video_playlist_tracks",
		CreateNew: `create table video_playlist_tracks_new (
			playlist_id integer not null,
			track_id text not null,
			position integer not null,
			added_at timestamp not null,
			primary key (playlist_id, track_id),
			foreign key (playlist_id) references video_playlists (id) on delete cascade,
			foreign key (track_id) references music_tracks (id) on delete no action
		)`,
		Columns: []string{"playlist_id", "track_id", "position", "added_at"},
		Indexes: []string{
			"create index if not exists index_video_playlist_tracks_playlist_id on video_playlist_tracks (playlist_id)",
			"create index if not exists index_video_playlist_tracks_track_id on video_playlist_tracks (track_id)",
		},
	})
}

type rebuildSpec struct {
	Table     string
	CreateNew string
	Columns   []string
	Indexes   []string
}

// rebuildTable is the usual SQLite shuffle for changing a constraint:
// create <table>_new with the wanted shape, copy the rows across, drop the
// old table, rename, then recreate the indexes. The copy uses insert or
// ignore so a duplicate key in a damaged store can't wedge the migration.
// The old table isn't dropped until the copy has succeeded.
func rebuildTable(ctx context.Context, tx *sql.Tx, spec rebuildSpec) error {
	cols := strings.Join(spec.Columns, ", ")

	stmts := []string{
		spec.CreateNew,
		fmt.Sprintf("insert or ignore into %s_new (%s) select %s from %s", spec.Table, cols, cols, spec.Table),
		fmt.Sprintf("drop table %s", spec.Table),
		fmt.Sprintf("alter table %s_new rename to %s", spec.Table, spec.Table),
	}
	stmts = append(stmts, spec.Indexes...)

	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("rebuildTable: %s: %w", spec.Table, err)
		}
	}

	return nil
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "pragma user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("migrate: couldn't read user_version: %w", err)
	}

	return version, nil
}

func setUserVersion(ctx context.Context, tx *sql.Tx, version int) error {
	// pragma arguments can't be bound.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("pragma user_version = %d", version)); err != nil {
		return fmt.Errorf("migrate: couldn't set user_version to %d: %w", version, err)
	}

	return nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}
