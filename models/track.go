package models

import (
	"time"

	"fknsrs.biz/p/kidsbeats/internal/sqlbuilderutil"
)

var (
	TrackTable *sqlbuilderutil.Table
)

func init() {
	TrackTable = sqlbuilderutil.MustMakeTable(Track{})
}

type Track struct {
	ID              string `sql:",table:music_tracks" json:"id"`
	CreatedAt       time.Time `json:"createdAt"`
	Title           string    `json:"title"`
	ArtistID        string    `json:"artistId"`
	ArtistName      string    `json:"artistName"`
	AlbumName       *string   `json:"albumName"`
	ThumbnailURL    *string   `json:"thumbnailUrl"`
	DurationSeconds int       `json:"durationSeconds"`
}
