package models

import (
	"time"

	"fknsrs.biz/p/kidsbeats/internal/sqlbuilderutil"
)

var (
	VideoTable *sqlbuilderutil.Table
)

func init() {
	VideoTable = sqlbuilderutil.MustMakeTable(Video{})
}

// Video is a catalog entry. The id is the upstream platform's opaque video
// identifier; display metadata is denormalized so the catalog stands alone.
type Video struct {
	ID              string `sql:",table:videos" json:"id"`
	CreatedAt       time.Time `json:"createdAt"`
	Title           string    `json:"title"`
	ChannelID       string    `json:"channelId"`
	ChannelName     string    `json:"channelName"`
	ThumbnailURL    *string   `json:"thumbnailUrl"`
	DurationSeconds int       `json:"durationSeconds"`
}
