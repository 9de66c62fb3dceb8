package ports

import (
	"context"
	"errors"
	"time"

	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	"github.com/vaultline/vaultline/modules/documents/domain/types"
)

var (
	ErrBundleNotFound    = errors.New("bundle_not_found")
	ErrSlotAlreadySigned = errors.New("slot_already_signed")
)

type BundleStore interface {
	InsertBundle(ctx context.Context, bundle types.DocumentBundle) error
	FindBundle(ctx context.Context, bundleID string) (types.DocumentBundle, error)
	// LatestBundlesForAsset returns the highest version of each document
	// type attached to the asset.
	LatestBundlesForAsset(ctx context.Context, assetID string) ([]types.DocumentBundle, error)
	// SetSignatureSlot fills one signer slot check-and-set: it fails with
	// ErrSlotAlreadySigned when the slot is already true, so repeated
	// deliveries of the same completion event stay idempotent.
	SetSignatureSlot(ctx context.Context, bundleID string, signer directorytypes.OrgType, signerIdentity string, at time.Time) error
	// ReferencedByToken reports whether a minted token's commitment covers
	// this bundle version.
	ReferencedByToken(ctx context.Context, bundleID string) (bool, error)
}
