package ports

import (
	"context"
	"errors"

	"github.com/vaultline/vaultline/modules/directory/domain/types"
)

var (
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrWalletAlreadySet     = errors.New("wallet_already_set")
)

type DirectoryStore interface {
	InsertOrganization(ctx context.Context, org types.Organization) error
	FindOrganization(ctx context.Context, orgID string) (types.Organization, error)
	FindActiveByType(ctx context.Context, orgType types.OrgType) ([]types.Organization, error)
	// SetWallet assigns the custodial wallet exactly once; a second call
	// fails with ErrWalletAlreadySet.
	SetWallet(ctx context.Context, orgID string, walletAddress string) error
}
