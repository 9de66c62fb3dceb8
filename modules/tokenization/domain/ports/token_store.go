package ports

import (
	"context"
	"errors"

	"github.com/vaultline/vaultline/modules/tokenization/domain/types"
)

var (
	ErrTokenNotFound      = errors.New("token_not_found")
	ErrCheckpointNotFound = errors.New("mint_checkpoint_not_found")
)

type TokenStore interface {
	FindToken(ctx context.Context, tokenID string) (types.Token, error)
	// FindActiveTokenByAsset returns the asset's non-burned token, or
	// ErrTokenNotFound.
	FindActiveTokenByAsset(ctx context.Context, assetID string) (types.Token, error)
	FindTokenByIssuance(ctx context.Context, issuanceID string) (types.Token, error)
	// LinkToken inserts the token, records which bundle versions its
	// commitment covers, and clears the asset's mint checkpoint in one
	// transaction.
	LinkToken(ctx context.Context, token types.Token, bundleIDs []string) error
	SetHolder(ctx context.Context, tokenID string, holderWallet string, status types.TokenStatus) error
	SetStatus(ctx context.Context, tokenID string, status types.TokenStatus) error

	SaveCheckpoint(ctx context.Context, cp types.MintCheckpoint) error
	FindCheckpoint(ctx context.Context, assetID string) (types.MintCheckpoint, error)
}
