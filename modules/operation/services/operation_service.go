package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	directoryservices "github.com/vaultline/vaultline/modules/directory/services"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	documentservices "github.com/vaultline/vaultline/modules/documents/services"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
	endorsementports "github.com/vaultline/vaultline/modules/endorsement/domain/ports"
	endorsementtypes "github.com/vaultline/vaultline/modules/endorsement/domain/types"
	"github.com/vaultline/vaultline/modules/operation/domain/ports"
	"github.com/vaultline/vaultline/modules/operation/domain/types"
	tokenizationports "github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	tokenizationservices "github.com/vaultline/vaultline/modules/tokenization/services"
	tokenizationtypes "github.com/vaultline/vaultline/modules/tokenization/domain/types"
	"github.com/vaultline/vaultline/pkg/httperr"
	"github.com/vaultline/vaultline/pkg/keylock"
)

const logModule = "operation"

var errNoAssets = errors.New("OPERATION_HAS_NO_ASSETS")

var newOperationUUID = func() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

var newAssetUUID = func() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

var newLetterUUID = func() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Actor identifies who invokes a state-machine operation. Authorization is
// a capability check against the directory's organization type, never an ad
// hoc string comparison at call sites.
type Actor struct {
	OrgID   string
	OrgType directorytypes.OrgType
}

func requireActorType(actor Actor, want directorytypes.OrgType) error {
	if actor.OrgType != want {
		return httperr.NewUnauthorized("operation requires a " + string(want) + " actor")
	}
	return nil
}

type tokenPipeline interface {
	FindActiveTokenByAsset(ctx context.Context, assetID string) (tokenizationtypes.Token, error)
	TransferHolder(ctx context.Context, tokenID string, toWallet string, reason string) (tokenizationtypes.Token, error)
	Burn(ctx context.Context, tokenID string) error
}

type bundleReader interface {
	AssetDocumentsComplete(ctx context.Context, assetID string) (bool, error)
	LatestBundles(ctx context.Context, assetID string) ([]documenttypes.DocumentBundle, error)
}

type walletDirectory interface {
	WalletFor(ctx context.Context, orgID string) (string, error)
	CustodyWarehouse(ctx context.Context) (directorytypes.Organization, error)
}

// pledgeReader reports whether a token currently collateralizes an open
// endorsement; it drives the derived PLEDGED asset state.
type pledgeReader interface {
	FindOpenByToken(ctx context.Context, tokenID string) (endorsementtypes.Endorsement, error)
}

var (
	_ tokenPipeline   = tokenizationservices.Pipeline(nil)
	_ bundleReader    = documentservices.BundleService(nil)
	_ walletDirectory = directoryservices.DirectoryService(nil)
	_ pledgeReader    = endorsementports.EndorsementStore(nil)
)

type AssetIntake struct {
	Serial        string
	Description   string
	DeclaredValue decimal.Decimal
	ClientOrgID   string
}

type CreateOperationRequest struct {
	Assets []AssetIntake
}

type OperationService interface {
	// Create opens an ACTIVE operation around a set of assets at custody
	// intake.
	Create(ctx context.Context, req CreateOperationRequest) (types.Operation, error)
	// Get returns the operation with its derived stage and derived
	// per-asset pledge state.
	Get(ctx context.Context, operationID string) (types.Operation, error)
	List(ctx context.Context) ([]types.Operation, error)
	// UploadPaymentLetter records payment evidence; it enters PENDING and
	// gates liquidation until approved.
	UploadPaymentLetter(ctx context.Context, operationID string, contentHash string, actor Actor) (types.PaymentLetter, error)
	// ApprovePaymentLetter is an operator-only approval.
	ApprovePaymentLetter(ctx context.Context, operationID string, actor Actor) (types.PaymentLetter, error)
	// PaymentLetter returns the operation's current (most recent) letter.
	PaymentLetter(ctx context.Context, operationID string) (types.PaymentLetter, error)
	// Liquidate moves the operation's tokens into warehouse custody.
	// Bank-only; requires an APPROVED payment letter.
	Liquidate(ctx context.Context, operationID string, actor Actor) (types.Operation, error)
	// CertifyDelivery burns the operation's tokens and releases the
	// operation. Warehouse-only; re-invocation after success is a no-op.
	CertifyDelivery(ctx context.Context, operationID string, actor Actor) (types.Operation, error)
}

type operationService struct {
	store   ports.OperationStore
	tokens  tokenPipeline
	bundles bundleReader
	wallets walletDirectory
	pledges pledgeReader
	locks   *keylock.KeyLock
}

func NewOperationService(store ports.OperationStore, tokens tokenPipeline, bundles bundleReader, wallets walletDirectory, pledges pledgeReader) OperationService {
	return &operationService{
		store:   store,
		tokens:  tokens,
		bundles: bundles,
		wallets: wallets,
		pledges: pledges,
		locks:   keylock.New(),
	}
}

func (s *operationService) Create(ctx context.Context, req CreateOperationRequest) (types.Operation, error) {
	if len(req.Assets) == 0 {
		return types.Operation{}, errNoAssets
	}
	for _, a := range req.Assets {
		if strings.TrimSpace(a.Serial) == "" {
			return types.Operation{}, httperr.NewBadRequest("asset serial is required")
		}
		if strings.TrimSpace(a.ClientOrgID) == "" {
			return types.Operation{}, httperr.NewBadRequest("asset client org id is required")
		}
		if a.DeclaredValue.Sign() <= 0 {
			return types.Operation{}, httperr.NewBadRequest("asset declared value must be positive")
		}
	}

	opID, err := newOperationUUID()
	if err != nil {
		return types.Operation{}, err
	}
	op := types.Operation{
		ID:     opID,
		Status: types.OperationActive,
		Stage:  types.StageCreated,
	}
	for _, a := range req.Assets {
		assetID, err := newAssetUUID()
		if err != nil {
			return types.Operation{}, err
		}
		op.Assets = append(op.Assets, types.Asset{
			ID:            assetID,
			OperationID:   opID,
			Serial:        a.Serial,
			Description:   a.Description,
			DeclaredValue: a.DeclaredValue,
			ClientOrgID:   a.ClientOrgID,
			Status:        types.AssetStored,
		})
	}
	if err := s.store.InsertOperation(ctx, op); err != nil {
		return types.Operation{}, err
	}
	log.WithFields(log.Fields{"module": logModule, "operation": op.ID, "assets": len(op.Assets)}).Info("operation created")
	return op, nil
}

func (s *operationService) Get(ctx context.Context, operationID string) (types.Operation, error) {
	op, err := s.store.FindOperation(ctx, operationID)
	if err != nil {
		return types.Operation{}, err
	}
	return s.enrich(ctx, op)
}

func (s *operationService) List(ctx context.Context) ([]types.Operation, error) {
	ops, err := s.store.ListOperations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Operation, 0, len(ops))
	for _, op := range ops {
		enriched, err := s.enrich(ctx, op)
		if err != nil {
			return nil, err
		}
		out = append(out, enriched)
	}
	return out, nil
}

// enrich fills the derived fields: the operation stage and each asset's
// pledge state.
func (s *operationService) enrich(ctx context.Context, op types.Operation) (types.Operation, error) {
	progress := make([]types.AssetProgress, 0, len(op.Assets))
	for i := range op.Assets {
		asset := &op.Assets[i]

		bundles, err := s.bundles.LatestBundles(ctx, asset.ID)
		if err != nil {
			return types.Operation{}, err
		}
		signed, err := s.bundles.AssetDocumentsComplete(ctx, asset.ID)
		if err != nil {
			return types.Operation{}, err
		}

		hasToken := false
		token, err := s.tokens.FindActiveTokenByAsset(ctx, asset.ID)
		switch {
		case err == nil:
			hasToken = true
			asset.TokenID = token.ID
		case errors.Is(err, tokenizationports.ErrTokenNotFound):
		default:
			return types.Operation{}, err
		}

		if hasToken && asset.Status == types.AssetStored {
			pledged, err := s.tokenPledged(ctx, token.ID)
			if err != nil {
				return types.Operation{}, err
			}
			if pledged {
				asset.Status = types.AssetPledged
			}
		}

		progress = append(progress, types.AssetProgress{
			Status:           asset.Status,
			DocumentsPresent: len(bundles) > 0,
			DocumentsSigned:  signed,
			HasToken:         hasToken,
		})
	}
	op.Stage = types.DeriveStage(progress)
	return op, nil
}

func (s *operationService) tokenPledged(ctx context.Context, tokenID string) (bool, error) {
	e, err := s.pledges.FindOpenByToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, endorsementports.ErrEndorsementNotFound) {
			return false, nil
		}
		return false, err
	}
	return e.Status == endorsementtypes.EndorsementTransferred, nil
}

func (s *operationService) UploadPaymentLetter(ctx context.Context, operationID string, contentHash string, actor Actor) (types.PaymentLetter, error) {
	if strings.TrimSpace(contentHash) == "" {
		return types.PaymentLetter{}, httperr.NewBadRequest("content hash is required")
	}
	op, err := s.store.FindOperation(ctx, operationID)
	if err != nil {
		return types.PaymentLetter{}, err
	}
	if op.Status != types.OperationActive {
		return types.PaymentLetter{}, httperr.NewConflict("operation is not active")
	}

	id, err := newLetterUUID()
	if err != nil {
		return types.PaymentLetter{}, err
	}
	letter := types.PaymentLetter{
		ID:          id,
		OperationID: operationID,
		ContentHash: contentHash,
		Status:      types.PaymentLetterPending,
		UploadedBy:  actor.OrgID,
	}
	if err := s.store.InsertPaymentLetter(ctx, letter); err != nil {
		return types.PaymentLetter{}, err
	}
	return letter, nil
}

func (s *operationService) ApprovePaymentLetter(ctx context.Context, operationID string, actor Actor) (types.PaymentLetter, error) {
	if err := requireActorType(actor, directorytypes.OrgTypeOperator); err != nil {
		return types.PaymentLetter{}, err
	}
	letter, err := s.store.FindLetterForOperation(ctx, operationID)
	if err != nil {
		return types.PaymentLetter{}, err
	}
	if letter.Status == types.PaymentLetterApproved {
		return letter, nil
	}
	if err := s.store.SetLetterStatus(ctx, letter.ID, types.PaymentLetterApproved, actor.OrgID); err != nil {
		return types.PaymentLetter{}, err
	}
	letter.Status = types.PaymentLetterApproved
	letter.ApprovedBy = actor.OrgID
	log.WithFields(log.Fields{"module": logModule, "operation": operationID, "letter": letter.ID}).Info("payment letter approved")
	return letter, nil
}

func (s *operationService) PaymentLetter(ctx context.Context, operationID string) (types.PaymentLetter, error) {
	if _, err := s.store.FindOperation(ctx, strings.TrimSpace(operationID)); err != nil {
		return types.PaymentLetter{}, err
	}
	return s.store.FindLetterForOperation(ctx, strings.TrimSpace(operationID))
}

func (s *operationService) Liquidate(ctx context.Context, operationID string, actor Actor) (types.Operation, error) {
	if err := requireActorType(actor, directorytypes.OrgTypeBank); err != nil {
		return types.Operation{}, err
	}

	// Validate under the operation lock; the ledger transfers themselves
	// happen with it released.
	unlock := s.locks.Lock(operationID)
	op, err := s.store.FindOperation(ctx, operationID)
	if err != nil {
		unlock()
		return types.Operation{}, err
	}
	if op.Status != types.OperationActive {
		unlock()
		return types.Operation{}, httperr.NewConflict("operation is not active")
	}
	letter, err := s.store.FindLetterForOperation(ctx, operationID)
	if err != nil {
		unlock()
		if errors.Is(err, ports.ErrPaymentLetterNotFound) {
			return types.Operation{}, httperr.NewPreconditionFailed("no payment letter on file")
		}
		return types.Operation{}, err
	}
	if letter.Status != types.PaymentLetterApproved {
		unlock()
		return types.Operation{}, httperr.NewPreconditionFailed("payment letter not approved")
	}
	unlock()

	warehouse, err := s.wallets.CustodyWarehouse(ctx)
	if err != nil {
		return types.Operation{}, err
	}
	warehouseWallet, err := s.wallets.WalletFor(ctx, warehouse.ID)
	if err != nil {
		return types.Operation{}, err
	}

	for _, asset := range op.Assets {
		token, err := s.tokens.FindActiveTokenByAsset(ctx, asset.ID)
		if err != nil {
			if errors.Is(err, tokenizationports.ErrTokenNotFound) {
				continue
			}
			return types.Operation{}, err
		}
		if _, err := s.tokens.TransferHolder(ctx, token.ID, warehouseWallet, "liquidation:"+operationID); err != nil {
			return types.Operation{}, err
		}
	}

	unlock = s.locks.Lock(operationID)
	defer unlock()
	if err := s.advanceStatus(ctx, &op, types.OperationLiquidated); err != nil {
		return types.Operation{}, err
	}
	log.WithFields(log.Fields{"module": logModule, "operation": operationID, "actor": actor.OrgID}).Info("operation liquidated")
	return s.enrich(ctx, op)
}

func (s *operationService) CertifyDelivery(ctx context.Context, operationID string, actor Actor) (types.Operation, error) {
	if err := requireActorType(actor, directorytypes.OrgTypeWarehouse); err != nil {
		return types.Operation{}, err
	}

	unlock := s.locks.Lock(operationID)
	op, err := s.store.FindOperation(ctx, operationID)
	if err != nil {
		unlock()
		return types.Operation{}, err
	}
	if op.Status == types.OperationReleased {
		// Already certified; report the released state without re-burning.
		unlock()
		return s.enrich(ctx, op)
	}
	if op.Status != types.OperationLiquidated {
		unlock()
		return types.Operation{}, httperr.NewConflict("operation has not been liquidated")
	}
	unlock()

	// Burns are idempotent at the pipeline level, so a partial failure here
	// is safe to retry.
	for _, asset := range op.Assets {
		token, err := s.tokens.FindActiveTokenByAsset(ctx, asset.ID)
		if err != nil {
			if errors.Is(err, tokenizationports.ErrTokenNotFound) {
				continue
			}
			return types.Operation{}, err
		}
		if err := s.tokens.Burn(ctx, token.ID); err != nil {
			return types.Operation{}, err
		}
		if err := s.store.SetAssetStatus(ctx, asset.ID, types.AssetDelivered); err != nil {
			return types.Operation{}, err
		}
	}

	unlock = s.locks.Lock(operationID)
	defer unlock()
	if err := s.advanceStatus(ctx, &op, types.OperationReleased); err != nil {
		return types.Operation{}, err
	}
	for i := range op.Assets {
		op.Assets[i].Status = types.AssetDelivered
	}
	log.WithFields(log.Fields{"module": logModule, "operation": operationID, "actor": actor.OrgID}).Info("delivery certified")
	return s.enrich(ctx, op)
}

func (s *operationService) advanceStatus(ctx context.Context, op *types.Operation, next types.OperationStatus) error {
	if !op.Status.CanAdvanceTo(next) {
		return httperr.NewConflict("operation status cannot advance from " + string(op.Status) + " to " + string(next))
	}
	if err := s.store.SetOperationStatus(ctx, op.ID, next); err != nil {
		return err
	}
	op.Status = next
	return nil
}
