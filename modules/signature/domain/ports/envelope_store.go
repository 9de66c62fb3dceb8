package ports

import (
	"context"
	"errors"
	"time"

	"github.com/vaultline/vaultline/modules/signature/domain/types"
)

var ErrEnvelopeNotFound = errors.New("envelope_not_found")

type EnvelopeStore interface {
	InsertEnvelope(ctx context.Context, env types.Envelope) error
	FindEnvelope(ctx context.Context, envelopeID string) (types.Envelope, error)
	ListOpenEnvelopes(ctx context.Context) ([]types.Envelope, error)
	SetEnvelopeStatus(ctx context.Context, envelopeID string, status types.EnvelopeStatus, syncedAt time.Time) error
}
