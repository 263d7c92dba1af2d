package models

// ContentFilter is a parental block on a whole channel or artist. Identity
// is the (kind, ref_id) pair, written with plain SQL like the membership
// tables.
type ContentFilter struct {
	Kind  string `sql:"kind,table:content_filters" json:"kind"`
	RefID string `sql:"ref_id" json:"refId"`
}

const (
	FilterKindChannel = "channel"
	FilterKindArtist  = "artist"
)
