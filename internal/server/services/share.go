// This file implements ShareService: creating public/private shares of a
// published folder version, redeeming and verifying access strings, and
// revocation with a permanent access history.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/server/auth"
	"github.com/dmitrijs2005/usenetsync/internal/server/config"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ShareService grants and verifies access to published folder versions.
// A share always pins one concrete version; later versions of the folder
// are not visible through it.
type ShareService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	secretKey   []byte
}

// NewShareService constructs a ShareService using repositories and config.
func NewShareService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *ShareService {
	return &ShareService{db: db, repomanager: m, secretKey: []byte(cfg.ShareSecretKey)}
}

// CreateShare creates a share of the given folder version. Version 0 pins
// the latest published version. Private shares require a non-empty
// authorized user set.
func (s *ShareService) CreateShare(ctx context.Context, folderID string, version int64, shareType models.ShareType, authorizedUserIDs []string) (*models.Share, error) {
	if shareType == models.SharePrivate && len(authorizedUserIDs) == 0 {
		return nil, fmt.Errorf("private share requires at least one authorized user")
	}

	latest, err := s.repomanager.Folders(s.db).LatestVersion(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("error selecting latest version: %w", err)
	}
	if latest == 0 {
		return nil, common.ErrorNotFound
	}
	if version == 0 {
		version = latest
	}
	if version > latest {
		return nil, common.ErrorNotFound
	}

	shareID := uuid.NewString()
	accessString, err := auth.GenerateAccessString(shareID, folderID, version, s.secretKey)
	if err != nil {
		return nil, fmt.Errorf("error signing access string: %w", err)
	}

	share := &models.Share{
		ShareID:           shareID,
		FolderID:          folderID,
		Version:           version,
		Type:              shareType,
		AccessString:      accessString,
		AuthorizedUserIDs: authorizedUserIDs,
		IsActive:          true,
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Shares(tx).Create(ctx, share)
	}); err != nil {
		return nil, err
	}
	return share, nil
}

// Redeem validates an access string and returns the share it references.
// Revoked shares fail with ErrShareRevoked even when the signature is good.
func (s *ShareService) Redeem(ctx context.Context, accessString string) (*models.Share, error) {
	claims, err := auth.ParseAccessString(accessString, s.secretKey)
	if err != nil {
		return nil, err
	}

	share, err := s.repomanager.Shares(s.db).Get(ctx, claims.ShareID)
	if err != nil {
		return nil, err
	}
	if !share.IsActive {
		return nil, common.ErrShareRevoked
	}
	return share, nil
}

// GetShare returns one share by id.
func (s *ShareService) GetShare(ctx context.Context, shareID string) (*models.Share, error) {
	return s.repomanager.Shares(s.db).Get(ctx, shareID)
}

// VerifyAccess checks whether userID may use the share. Public shares admit
// everyone; private shares only their authorized user set.
func (s *ShareService) VerifyAccess(ctx context.Context, shareID, userID string) error {
	share, err := s.repomanager.Shares(s.db).Get(ctx, shareID)
	if err != nil {
		return err
	}
	if !share.IsActive {
		return common.ErrShareRevoked
	}
	if share.Type == models.SharePublic {
		return nil
	}
	for _, id := range share.AuthorizedUserIDs {
		if id == userID {
			return nil
		}
	}
	return common.ErrorUnauthorized
}

// Revoke deactivates a share. The share row and its history remain.
func (s *ShareService) Revoke(ctx context.Context, shareID string) error {
	return s.repomanager.Shares(s.db).Revoke(ctx, shareID, time.Now())
}

// AccessHistory lists every share ever created for a folder, revoked ones
// included, newest first.
func (s *ShareService) AccessHistory(ctx context.Context, folderID string) ([]*models.Share, error) {
	return s.repomanager.Shares(s.db).ByFolder(ctx, folderID)
}
