package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	"github.com/vaultline/vaultline/modules/documents/domain/ports"
	"github.com/vaultline/vaultline/modules/documents/domain/types"
	"github.com/vaultline/vaultline/pkg/httperr"
)

const logModule = "documents"

const (
	errAlreadySigned      = "ALREADY_SIGNED"
	errWrongSignerType    = "WRONG_SIGNER_TYPE"
	errDocTypeInvalid     = "DOC_TYPE_INVALID"
	errContentHashInvalid = "CONTENT_HASH_INVALID"
	errBundleImmutable    = "BUNDLE_REFERENCED_BY_TOKEN"
)

var newBundleUUID = func() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// FullySignedHook fires once when the last required slot of a bundle is
// filled. Delivery is at-least-once; consumers must tolerate replays.
type FullySignedHook func(ctx context.Context, bundle types.DocumentBundle)

type RecordSignatureRequest struct {
	BundleID       string
	SignerType     directorytypes.OrgType
	SignerIdentity string
	SignedAt       time.Time
}

type BundleService interface {
	CreateBundle(ctx context.Context, assetID string, docType types.DocumentType, contentHash string) (types.DocumentBundle, error)
	RecordSignature(ctx context.Context, req RecordSignatureRequest) error
	// Regenerate resets all slots under a new version. Refused once a
	// minted token references the previous version.
	Regenerate(ctx context.Context, bundleID string, contentHash string) (types.DocumentBundle, error)
	RequiredSigners(docType types.DocumentType) ([]directorytypes.OrgType, error)
	// AssetDocumentsComplete reports whether the asset has at least one
	// bundle and every latest-version bundle is fully signed.
	AssetDocumentsComplete(ctx context.Context, assetID string) (bool, error)
	LatestBundles(ctx context.Context, assetID string) ([]types.DocumentBundle, error)
}

type bundleService struct {
	store  ports.BundleStore
	policy SignerPolicy
	hook   FullySignedHook
}

func NewBundleService(store ports.BundleStore, policy SignerPolicy, hook FullySignedHook) BundleService {
	return &bundleService{store: store, policy: policy, hook: hook}
}

func (s *bundleService) CreateBundle(ctx context.Context, assetID string, docType types.DocumentType, contentHash string) (types.DocumentBundle, error) {
	if !docType.Valid() {
		return types.DocumentBundle{}, httperr.NewBadRequest(errDocTypeInvalid)
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return types.DocumentBundle{}, httperr.NewBadRequest("asset id is required")
	}
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return types.DocumentBundle{}, httperr.NewBadRequest(errContentHashInvalid)
	}

	id, err := newBundleUUID()
	if err != nil {
		return types.DocumentBundle{}, err
	}
	bundle := types.DocumentBundle{
		ID:          id,
		AssetID:     assetID,
		Type:        docType,
		Version:     1,
		ContentHash: contentHash,
	}
	if err := s.store.InsertBundle(ctx, bundle); err != nil {
		return types.DocumentBundle{}, err
	}
	return bundle, nil
}

func (s *bundleService) RequiredSigners(docType types.DocumentType) ([]directorytypes.OrgType, error) {
	return s.policy.RequiredSigners(docType)
}

func (s *bundleService) RecordSignature(ctx context.Context, req RecordSignatureRequest) error {
	bundle, err := s.store.FindBundle(ctx, req.BundleID)
	if err != nil {
		return err
	}

	required, err := s.policy.RequiredSigners(bundle.Type)
	if err != nil {
		return err
	}
	if !signerInSet(req.SignerType, required) {
		return httperr.NewBadRequest(errWrongSignerType)
	}

	slot, _ := bundle.Slot(req.SignerType)
	if slot.Signed {
		return errors.New(errAlreadySigned)
	}

	at := req.SignedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := s.store.SetSignatureSlot(ctx, bundle.ID, req.SignerType, req.SignerIdentity, at); err != nil {
		if errors.Is(err, ports.ErrSlotAlreadySigned) {
			return errors.New(errAlreadySigned)
		}
		return err
	}

	signed, err := s.store.FindBundle(ctx, bundle.ID)
	if err != nil {
		return err
	}
	if signed.FullySignedFor(required) && s.hook != nil {
		log.WithFields(log.Fields{"module": logModule, "bundle": signed.ID, "doc_type": signed.Type}).Info("bundle fully signed")
		s.hook(ctx, signed)
	}
	return nil
}

func (s *bundleService) Regenerate(ctx context.Context, bundleID string, contentHash string) (types.DocumentBundle, error) {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return types.DocumentBundle{}, httperr.NewBadRequest(errContentHashInvalid)
	}

	prev, err := s.store.FindBundle(ctx, bundleID)
	if err != nil {
		return types.DocumentBundle{}, err
	}

	referenced, err := s.store.ReferencedByToken(ctx, prev.ID)
	if err != nil {
		return types.DocumentBundle{}, err
	}
	if referenced {
		return types.DocumentBundle{}, httperr.NewConflict(errBundleImmutable)
	}

	id, err := newBundleUUID()
	if err != nil {
		return types.DocumentBundle{}, err
	}
	next := types.DocumentBundle{
		ID:          id,
		AssetID:     prev.AssetID,
		Type:        prev.Type,
		Version:     prev.Version + 1,
		ContentHash: contentHash,
	}
	if err := s.store.InsertBundle(ctx, next); err != nil {
		return types.DocumentBundle{}, err
	}
	return next, nil
}

func (s *bundleService) AssetDocumentsComplete(ctx context.Context, assetID string) (bool, error) {
	bundles, err := s.store.LatestBundlesForAsset(ctx, assetID)
	if err != nil {
		return false, err
	}
	if len(bundles) == 0 {
		return false, nil
	}
	for _, b := range bundles {
		required, err := s.policy.RequiredSigners(b.Type)
		if err != nil {
			return false, err
		}
		if !b.FullySignedFor(required) {
			return false, nil
		}
	}
	return true, nil
}

func (s *bundleService) LatestBundles(ctx context.Context, assetID string) ([]types.DocumentBundle, error) {
	return s.store.LatestBundlesForAsset(ctx, assetID)
}

func signerInSet(signer directorytypes.OrgType, set []directorytypes.OrgType) bool {
	for _, s := range set {
		if s == signer {
			return true
		}
	}
	return false
}
