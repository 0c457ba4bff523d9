package models

import "time"

// ShareType distinguishes bearer shares from shares with an authorized
// user set.
type ShareType string

const (
	SharePublic  ShareType = "public"
	SharePrivate ShareType = "private"
)

// Share grants access to one specific folder version. Revoking a share
// flips IsActive but never deletes the record or the underlying version;
// the access history of a folder stays queryable forever.
type Share struct {
	ShareID  string
	FolderID string
	Version  int64
	Type     ShareType
	// AccessString is the opaque redemption token handed to recipients.
	AccessString      string
	AuthorizedUserIDs []string
	CreatedAt         time.Time
	IsActive          bool
	RevokedAt         *time.Time
}
