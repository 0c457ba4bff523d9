// Package auth signs and validates share access strings. An access string
// is an HS256 JWT carrying the share, folder and version it grants access
// to; possession of the string plus an active share row is what authorizes
// a download.
package auth

import (
	"time"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// ShareClaims are the registered claims plus the share reference.
type ShareClaims struct {
	jwt.RegisteredClaims
	ShareID  string
	FolderID string
	Version  int64
}

// GenerateAccessString signs a redemption token for the given share.
// Access strings do not expire; revocation happens against the share row.
func GenerateAccessString(shareID, folderID string, version int64, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ShareClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		ShareID:  shareID,
		FolderID: folderID,
		Version:  version,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseAccessString validates the signature and returns the embedded claims.
// Any malformed or foreign-signed string yields ErrInvalidAccessString.
func ParseAccessString(tokenString string, secretKey []byte) (*ShareClaims, error) {
	claims := &ShareClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, common.ErrInvalidAccessString
	}

	if !token.Valid {
		return nil, common.ErrInvalidAccessString
	}

	return claims, nil
}
