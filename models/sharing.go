package models

import (
	"time"

	"fknsrs.biz/p/kidsbeats/internal/sqlbuilderutil"
)

var (
	SharedPlaylistTable *sqlbuilderutil.Table
)

func init() {
	SharedPlaylistTable = sqlbuilderutil.MustMakeTable(SharedPlaylist{})
}

// SharedPlaylist is the persisted share record. It doubles as the sharer's
// own view of an outstanding share (SharedPlaylistInfo in the app's UI).
// Expiry is a computed predicate, not a state transition: the row stays put
// when the window lapses, it just stops being redeemable.
type SharedPlaylist struct {
	ID                int           `sql:",table:shared_playlists" json:"-"`
	ShareCode         string        `json:"shareCode"`
	PlaylistID        int           `json:"playlistId"`
	PlaylistName      string        `json:"playlistName"`
	Description       *string       `json:"description"`
	Color             PlaylistColor `json:"color"`
	SharedByChildName string        `json:"sharedByChildName"`
	SharedByFamilyID  string        `json:"sharedByFamilyId"`
	SharedAt          time.Time     `json:"sharedAt"`
	ExpiresAt         time.Time     `json:"expiresAt"`
	RedeemCount       int           `json:"redeemCount"`
	MaxRedeems        int           `json:"maxRedeems"`
	IsActive          bool          `json:"isActive"`
}

// IsExpired treats now == ExpiresAt as still valid.
func (s *SharedPlaylist) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *SharedPlaylist) CanRedeem(now time.Time) bool {
	return !s.IsExpired(now) && s.RedeemCount < s.MaxRedeems
}

// SharedVideoInfo is a transport-safe denormalized copy of a catalog video,
// captured at share time. It stays valid even if the source video is later
// deleted. Also the row shape of shared_playlist_videos.
type SharedVideoInfo struct {
	VideoID         string  `json:"videoId"`
	Title           string  `json:"title"`
	ChannelID       string  `json:"channelId"`
	ChannelName     string  `json:"channelName"`
	ThumbnailURL    *string `json:"thumbnailUrl"`
	DurationSeconds int     `json:"durationSeconds"`
}

type SharedTrackInfo struct {
	TrackID         string  `json:"trackId"`
	Title           string  `json:"title"`
	ArtistID        string  `json:"artistId"`
	ArtistName      string  `json:"artistName"`
	AlbumName       *string `json:"albumName"`
	ThumbnailURL    *string `json:"thumbnailUrl"`
	DurationSeconds int     `json:"durationSeconds"`
}

// SharedPlaylistData is the full export snapshot: the transport payload a
// redeeming device consumes. Immutable once created; re-sharing a playlist
// produces a fresh code and a fresh snapshot.
type SharedPlaylistData struct {
	ShareCode         string            `json:"shareCode"`
	PlaylistName      string            `json:"playlistName"`
	Description       *string           `json:"description"`
	Color             PlaylistColor     `json:"color"`
	SharedByChildName string            `json:"sharedByChildName"`
	SharedByFamilyID  string            `json:"sharedByFamilyId"`
	Videos            []SharedVideoInfo `json:"videos"`
	Tracks            []SharedTrackInfo `json:"tracks"`
}

// SharedPlaylistPreview is what a recipient sees before committing to an
// import: counts instead of item lists. The derived values are computed at
// read time against an explicit clock, never stored.
type SharedPlaylistPreview struct {
	ShareCode         string    `json:"shareCode"`
	PlaylistName      string    `json:"playlistName"`
	Description       *string   `json:"description"`
	SharedByChildName string    `json:"sharedByChildName"`
	VideoCount        int       `json:"videoCount"`
	TrackCount        int       `json:"trackCount"`
	ExpiresAt         time.Time `json:"expiresAt"`
	RedeemCount       int       `json:"redeemCount"`
	MaxRedeems        int       `json:"maxRedeems"`
}

func (p SharedPlaylistPreview) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

func (p SharedPlaylistPreview) CanRedeem(now time.Time) bool {
	return !p.IsExpired(now) && p.RedeemCount < p.MaxRedeems
}

func (p SharedPlaylistPreview) TotalItemCount() int {
	return p.VideoCount + p.TrackCount
}
