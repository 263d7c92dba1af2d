package models

import (
	"time"

	"fknsrs.biz/p/kidsbeats/internal/sqlbuilderutil"
)

var (
	PlaylistTable *sqlbuilderutil.Table
)

func init() {
	PlaylistTable = sqlbuilderutil.MustMakeTable(Playlist{})
}

// PlaylistColor is one of the eight swatches the app offers. Stored as text.
type PlaylistColor string

const (
	ColorPink   PlaylistColor = "pink"
	ColorBlue   PlaylistColor = "blue"
	ColorGreen  PlaylistColor = "green"
	ColorOrange PlaylistColor = "orange"
	ColorPurple PlaylistColor = "purple"
	ColorYellow PlaylistColor = "yellow"
	ColorRed    PlaylistColor = "red"
	ColorTeal   PlaylistColor = "teal"
)

var playlistColorHex = map[PlaylistColor]string{
	ColorPink:   "#FF6B9D",
	ColorBlue:   "#4DA6FF",
	ColorGreen:  "#66CC99",
	ColorOrange: "#FFB366",
	ColorPurple: "#B366FF",
	ColorYellow: "#FFE666",
	ColorRed:    "#FF6B6B",
	ColorTeal:   "#66CCCC",
}

func (c PlaylistColor) Valid() bool {
	_, ok := playlistColorHex[c]
	return ok
}

func (c PlaylistColor) Hex() string {
	return playlistColorHex[c]
}

type Playlist struct {
	ID           int `sql:",table:video_playlists" json:"id"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Name         string        `json:"name"`
	Description  *string       `json:"description"`
	ThumbnailURL *string       `json:"thumbnailUrl"`
	VideoCount   int           `json:"videoCount"`
	TrackCount   int           `json:"trackCount"`
	IsFavorite   bool          `json:"isFavorite"`
	Color        PlaylistColor `json:"color"`

	ShareCode    *string    `json:"shareCode"`
	SharedAt     *time.Time `json:"sharedAt"`
	IsImported   bool       `json:"isImported"`
	ImportedFrom *string    `json:"importedFrom"`
	ImportedAt   *time.Time `json:"importedAt"`

	Videos []Video `sql:"-" json:"videos,omitempty"`
	Tracks []Track `sql:"-" json:"tracks,omitempty"`
}

func (p *Playlist) TotalItemCount() int {
	return p.VideoCount + p.TrackCount
}

// IsShared holds exactly when a share code is present.
func (p *Playlist) IsShared() bool {
	return p.ShareCode != nil
}
