package sharing

import (
	"fknsrs.biz/p/kidsbeats/models"
)

// Each operation returns a closed set of outcomes rather than an error for
// every non-happy path: a recipient typing an expired code is a normal
// conversation with the user, not a failure. Infrastructure problems still
// come back as the Error variant with a human-readable message.

// ShareResult is the outcome of sharing a playlist.
type ShareResult interface{ shareResult() }

type ShareSuccess struct {
	ShareCode string `json:"shareCode"`
}

// ShareError carries a Reason (one of the Reason* constants) when the
// rejection is predictable, like sharing an empty playlist; infrastructure
// failures leave it empty.
type ShareError struct {
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func (ShareSuccess) shareResult() {}
func (ShareError) shareResult()   {}

// ValidateResult is the outcome of looking up a code before import.
type ValidateResult interface{ validateResult() }

type ValidateValid struct {
	Preview models.SharedPlaylistPreview `json:"preview"`
}

// ValidateInvalid covers the predictable rejections: unknown code, expired
// code, redemption limit reached. Reason is one of the Reason* constants.
type ValidateInvalid struct {
	Reason string `json:"reason"`
}

type ValidateError struct {
	Message string `json:"message"`
}

func (ValidateValid) validateResult()   {}
func (ValidateInvalid) validateResult() {}
func (ValidateError) validateResult()   {}

const (
	ReasonNotFound        = "not_found"
	ReasonExpired         = "expired"
	ReasonRedemptionLimit = "redemption_limit_reached"
	ReasonEmptyPlaylist   = "empty_playlist"
	ReasonNotConfigured   = "not_configured"
)

// ImportResult is the outcome of redeeming a code into the local library.
type ImportResult interface{ importResult() }

type ImportSuccess struct {
	PlaylistID    int `json:"playlistId"`
	ItemsImported int `json:"itemsImported"`
	ItemsFiltered int `json:"itemsFiltered"`
}

// ImportInvalid happens when the code stops being redeemable between
// validation and import, say another device spent the last redemption.
type ImportInvalid struct {
	Reason string `json:"reason"`
}

type ImportError struct {
	Message string `json:"message"`
}

func (ImportSuccess) importResult() {}
func (ImportInvalid) importResult() {}
func (ImportError) importResult()   {}
