package ports

import (
	"context"
	"errors"

	"github.com/vaultline/vaultline/modules/endorsement/domain/types"
)

var (
	ErrEndorsementNotFound = errors.New("endorsement_not_found")
	// ErrEndorsementStale is returned by guarded updates when the row
	// exists but its status no longer matches the caller's expectation.
	ErrEndorsementStale = errors.New("endorsement_stale")
)

type EndorsementStore interface {
	InsertEndorsement(ctx context.Context, e types.Endorsement) error
	FindEndorsement(ctx context.Context, endorsementID string) (types.Endorsement, error)
	// FindOpenByToken returns the token's endorsement that is not in a
	// terminal state, or ErrEndorsementNotFound.
	FindOpenByToken(ctx context.Context, tokenID string) (types.Endorsement, error)
	ListByAsset(ctx context.Context, assetID string) ([]types.Endorsement, error)
	// SetPartySigned records one party's signature check-and-set: the row
	// must still be PENDING, and the promotion to SIGNED happens in the
	// same statement once the other party has signed.
	SetPartySigned(ctx context.Context, endorsementID string, party types.Party) error
	// SetStatus advances the endorsement only from the expected current
	// status; any other state returns ErrEndorsementStale.
	SetStatus(ctx context.Context, endorsementID string, from, to types.EndorsementStatus) error
}
