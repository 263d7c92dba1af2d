package models

import (
	"time"

	"fknsrs.biz/p/kidsbeats/internal/sqlbuilderutil"
)

var (
	PlaylistVideoTable *sqlbuilderutil.Table
	PlaylistTrackTable *sqlbuilderutil.Table
)

func init() {
	PlaylistVideoTable = sqlbuilderutil.MustMakeTable(PlaylistVideo{})
	PlaylistTrackTable = sqlbuilderutil.MustMakeTable(PlaylistTrack{})
}

// PlaylistVideo and PlaylistTrack are membership rows. Their identity is the
// composite (playlist, item) pair, so they are written with plain SQL rather
// than the record mapper, which wants a surrogate id column.

type PlaylistVideo struct {
	PlaylistID int `sql:",table:playlist_videos"`
	VideoID    string
	Position   int
	AddedAt    time.Time
}

type PlaylistTrack struct {
	PlaylistID int `sql:",table:video_playlist_tracks"`
	TrackID    string
	Position   int
	AddedAt    time.Time
}
