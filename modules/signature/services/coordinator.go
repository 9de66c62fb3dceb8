package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
	documentservices "github.com/vaultline/vaultline/modules/documents/services"
	"github.com/vaultline/vaultline/modules/signature/domain/ports"
	"github.com/vaultline/vaultline/modules/signature/domain/types"
	"github.com/vaultline/vaultline/pkg/httperr"
)

const logModule = "signature"

const (
	errActorDataIncomplete = "ACTOR_DATA_INCOMPLETE"
	errEnvelopeEmpty       = "ENVELOPE_EMPTY"
	errAlreadySigned       = "ALREADY_SIGNED"
)

var newEnvelopeUUID = func() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

var nowUTC = func() time.Time { return time.Now().UTC() }

// signatureRecorder is the slice of the document bundle service the
// coordinator drives.
type signatureRecorder interface {
	RecordSignature(ctx context.Context, req documentservices.RecordSignatureRequest) error
	RequiredSigners(docType documenttypes.DocumentType) ([]directorytypes.OrgType, error)
}

type Coordinator interface {
	// Initiate opens one external envelope covering the asset's document
	// set for the given actors.
	Initiate(ctx context.Context, assetID string, documents []types.EnvelopeDocument, actors []types.EnvelopeActor) (types.Envelope, error)
	// SyncActivity pulls per-actor status from the provider and maps
	// COMPLETED activities onto bundle signature slots. Safe to invoke
	// repeatedly; duplicate recordings are absorbed by the bundle
	// manager's already-signed guard.
	SyncActivity(ctx context.Context, envelopeID string) (types.Envelope, error)
	// RunPoller drives SyncActivity for all open envelopes on a fixed
	// cadence until the context is cancelled.
	RunPoller(ctx context.Context, interval time.Duration)
}

type coordinator struct {
	store    ports.EnvelopeStore
	provider ports.EsignProvider
	recorder signatureRecorder
}

func NewCoordinator(store ports.EnvelopeStore, provider ports.EsignProvider, recorder signatureRecorder) Coordinator {
	return &coordinator{store: store, provider: provider, recorder: recorder}
}

func (c *coordinator) Initiate(ctx context.Context, assetID string, documents []types.EnvelopeDocument, actors []types.EnvelopeActor) (types.Envelope, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return types.Envelope{}, httperr.NewBadRequest("asset id is required")
	}
	if len(documents) == 0 {
		return types.Envelope{}, httperr.NewBadRequest(errEnvelopeEmpty)
	}
	for _, actor := range actors {
		if strings.TrimSpace(actor.Email) == "" || strings.TrimSpace(actor.Name) == "" {
			return types.Envelope{}, httperr.NewBadRequest(errActorDataIncomplete)
		}
	}

	externalRef, err := c.provider.CreateEnvelope(ctx, documents, actors)
	if err != nil {
		return types.Envelope{}, err
	}

	id, err := newEnvelopeUUID()
	if err != nil {
		return types.Envelope{}, err
	}
	env := types.Envelope{
		ID:          id,
		AssetID:     assetID,
		ExternalRef: externalRef,
		Status:      types.EnvelopeOpen,
		Documents:   documents,
	}
	if err := c.store.InsertEnvelope(ctx, env); err != nil {
		return types.Envelope{}, err
	}
	log.WithFields(log.Fields{"module": logModule, "envelope": env.ID, "asset": assetID, "documents": len(documents)}).Info("envelope initiated")
	return env, nil
}

func (c *coordinator) SyncActivity(ctx context.Context, envelopeID string) (types.Envelope, error) {
	env, err := c.store.FindEnvelope(ctx, envelopeID)
	if err != nil {
		return types.Envelope{}, err
	}
	if env.Status != types.EnvelopeOpen {
		return env, nil
	}

	activities, err := c.provider.GetActivities(ctx, env.ExternalRef)
	if err != nil {
		return types.Envelope{}, err
	}

	completed := 0
	for _, activity := range activities {
		switch activity.Status {
		case types.ActivityRejected:
			// Terminal per actor; the whole envelope needs manual
			// re-initiation.
			env.Status = types.EnvelopeBlocked
			log.WithFields(log.Fields{"module": logModule, "envelope": env.ID, "actor": activity.ActorType}).Warn("envelope blocked by rejection")
			if err := c.store.SetEnvelopeStatus(ctx, env.ID, types.EnvelopeBlocked, nowUTC()); err != nil {
				return types.Envelope{}, err
			}
			return env, nil
		case types.ActivityCompleted:
			completed++
			if err := c.recordCompletion(ctx, env, activity); err != nil {
				return types.Envelope{}, err
			}
		}
	}

	status := types.EnvelopeOpen
	if len(activities) > 0 && completed == len(activities) {
		status = types.EnvelopeCompleted
	}
	if err := c.store.SetEnvelopeStatus(ctx, env.ID, status, nowUTC()); err != nil {
		return types.Envelope{}, err
	}
	env.Status = status
	return env, nil
}

func (c *coordinator) recordCompletion(ctx context.Context, env types.Envelope, activity types.ActorActivity) error {
	signedAt := nowUTC()
	if activity.CompletedAt != nil {
		signedAt = *activity.CompletedAt
	}
	for _, doc := range env.Documents {
		required, err := c.recorder.RequiredSigners(doc.DocType)
		if err != nil {
			return err
		}
		if !signerRequired(activity.ActorType, required) {
			continue
		}
		err = c.recorder.RecordSignature(ctx, documentservices.RecordSignatureRequest{
			BundleID:       doc.BundleID,
			SignerType:     activity.ActorType,
			SignerIdentity: activity.ActorOrgID,
			SignedAt:       signedAt,
		})
		if err != nil {
			// Replayed completion events land here; they are benign.
			if err.Error() == errAlreadySigned {
				continue
			}
			return err
		}
	}
	return nil
}

func (c *coordinator) RunPoller(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			open, err := c.store.ListOpenEnvelopes(ctx)
			if err != nil {
				log.WithFields(log.Fields{"module": logModule, "err": err}).Error("poller list open envelopes failed")
				continue
			}
			for _, env := range open {
				if _, err := c.SyncActivity(ctx, env.ID); err != nil {
					log.WithFields(log.Fields{"module": logModule, "envelope": env.ID, "err": err}).Error("poller sync failed")
				}
			}
		}
	}
}

func signerRequired(signer directorytypes.OrgType, set []directorytypes.OrgType) bool {
	for _, s := range set {
		if s == signer {
			return true
		}
	}
	return false
}

// assertion that the bundle service satisfies the recorder slice
var _ signatureRecorder = documentservices.BundleService(nil)
