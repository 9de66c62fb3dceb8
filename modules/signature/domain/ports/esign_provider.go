package ports

import (
	"context"

	"github.com/vaultline/vaultline/modules/signature/domain/types"
)

// EsignProvider is the external e-signature collaborator. Sessions are
// asynchronous and may take hours to days to complete.
type EsignProvider interface {
	CreateEnvelope(ctx context.Context, documents []types.EnvelopeDocument, actors []types.EnvelopeActor) (externalRef string, err error)
	GetActivities(ctx context.Context, externalRef string) ([]types.ActorActivity, error)
}
