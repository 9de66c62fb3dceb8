package ports

import (
	"context"
	"errors"

	"github.com/vaultline/vaultline/modules/operation/domain/types"
)

var (
	ErrOperationNotFound     = errors.New("operation_not_found")
	ErrAssetNotFound         = errors.New("asset_not_found")
	ErrPaymentLetterNotFound = errors.New("payment_letter_not_found")
)

type OperationStore interface {
	InsertOperation(ctx context.Context, op types.Operation) error
	FindOperation(ctx context.Context, operationID string) (types.Operation, error)
	ListOperations(ctx context.Context) ([]types.Operation, error)
	SetOperationStatus(ctx context.Context, operationID string, status types.OperationStatus) error

	InsertAsset(ctx context.Context, a types.Asset) error
	FindAsset(ctx context.Context, assetID string) (types.Asset, error)
	AssetsForOperation(ctx context.Context, operationID string) ([]types.Asset, error)
	SetAssetStatus(ctx context.Context, assetID string, status types.AssetStatus) error
	SetAssetToken(ctx context.Context, assetID string, tokenID string) error

	InsertPaymentLetter(ctx context.Context, l types.PaymentLetter) error
	// FindLetterForOperation returns the operation's most recent payment
	// letter, or ErrPaymentLetterNotFound.
	FindLetterForOperation(ctx context.Context, operationID string) (types.PaymentLetter, error)
	SetLetterStatus(ctx context.Context, letterID string, status types.PaymentLetterStatus, approvedBy string) error
}
