package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	directoryservices "github.com/vaultline/vaultline/modules/directory/services"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	documentservices "github.com/vaultline/vaultline/modules/documents/services"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
	"github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	"github.com/vaultline/vaultline/modules/tokenization/domain/types"
	"github.com/vaultline/vaultline/pkg/commitment"
	"github.com/vaultline/vaultline/pkg/httperr"
	"github.com/vaultline/vaultline/pkg/keylock"
)

const logModule = "tokenization"

const (
	errAlreadyTokenized    = "ALREADY_TOKENIZED"
	errDocumentsIncomplete = "DOCUMENTS_INCOMPLETE"
	errWrongHolder         = "WRONG_HOLDER"
	errTokenBurned         = "TOKEN_BURNED"
)

var mintNamespace = uuid.Must(uuid.Parse("4f1c2d9a-8c67-4e55-9f0e-3db1a52c7b14"))
var burnNamespace = uuid.Must(uuid.Parse("b3a9e0d1-52f8-47c6-8a2e-6c94d07f31e9"))
var transferNamespace = uuid.Must(uuid.Parse("97c5f6b2-1e44-4a8d-b7a3-02e8c1d95f60"))

// Deterministic idempotency keys: a retried call re-derives the same key,
// so the ledger absorbs the duplicate.
func mintIdempotencyKey(assetID string, root string) string {
	return uuid.NewSHA1(mintNamespace, []byte(fmt.Sprintf("tokenization.mint:%s:%s", assetID, root))).String()
}

func burnIdempotencyKey(issuanceID string) string {
	return uuid.NewSHA1(burnNamespace, []byte("tokenization.burn:"+issuanceID)).String()
}

func transferIdempotencyKey(issuanceID string, toWallet string, reason string) string {
	return uuid.NewSHA1(transferNamespace, []byte(fmt.Sprintf("tokenization.transfer:%s:%s:%s", issuanceID, toWallet, reason))).String()
}

var newTokenUUID = func() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// bundleReader is the slice of the document bundle service the pipeline
// gates on.
type bundleReader interface {
	AssetDocumentsComplete(ctx context.Context, assetID string) (bool, error)
	LatestBundles(ctx context.Context, assetID string) ([]documenttypes.DocumentBundle, error)
}

// walletDirectory resolves custodial wallets from the actor directory.
type walletDirectory interface {
	WalletFor(ctx context.Context, orgID string) (string, error)
	CustodyWarehouse(ctx context.Context) (directorytypes.Organization, error)
}

var (
	_ bundleReader    = documentservices.BundleService(nil)
	_ walletDirectory = directoryservices.DirectoryService(nil)
)

type TokenizeRequest struct {
	AssetID     string
	ClientOrgID string
	Amount      decimal.Decimal
}

type PreviewResult struct {
	Commitment         string
	DocumentsComplete  bool
	DocumentCount      int
	RequiredSignatures bool
}

type Pipeline interface {
	// Tokenize runs the irreversible mint sequence. Exactly-once on
	// success; a concurrent or repeated call observes ALREADY_TOKENIZED.
	Tokenize(ctx context.Context, req TokenizeRequest) (types.Token, error)
	// Preview computes the commitment without minting.
	Preview(ctx context.Context, assetID string) (PreviewResult, error)
	// Burn retires the token. The token must be held by the custody
	// warehouse's wallet; a token held by a bank returns via endorsement
	// repayment first.
	Burn(ctx context.Context, tokenID string) error
	// TransferHolder moves token control between custodial wallets.
	// reason distinguishes idempotency scopes (endorsement execute,
	// repayment, liquidation).
	TransferHolder(ctx context.Context, tokenID string, toWallet string, reason string) (types.Token, error)
	History(ctx context.Context, issuanceID string) ([]ports.LedgerEvent, error)
	FindActiveTokenByAsset(ctx context.Context, assetID string) (types.Token, error)
	FindToken(ctx context.Context, tokenID string) (types.Token, error)
}

type pipeline struct {
	store   ports.TokenStore
	ledger  ports.Ledger
	bundles bundleReader
	wallets walletDirectory
	locks   *keylock.KeyLock
}

func NewPipeline(store ports.TokenStore, ledger ports.Ledger, bundles bundleReader, wallets walletDirectory) Pipeline {
	return &pipeline{
		store:   store,
		ledger:  ledger,
		bundles: bundles,
		wallets: wallets,
		locks:   keylock.New(),
	}
}

func (p *pipeline) Tokenize(ctx context.Context, req TokenizeRequest) (types.Token, error) {
	assetID := strings.TrimSpace(req.AssetID)
	if assetID == "" {
		return types.Token{}, httperr.NewBadRequest("asset id is required")
	}
	if strings.TrimSpace(req.ClientOrgID) == "" {
		return types.Token{}, httperr.NewBadRequest("client org id is required")
	}
	if req.Amount.Sign() <= 0 {
		return types.Token{}, httperr.NewBadRequest("amount must be positive")
	}

	// Step 1+2: validate and compute the commitment under the asset lock.
	cp, err := p.prepareMint(ctx, assetID)
	if err != nil {
		return types.Token{}, err
	}

	// Wallet resolution and ledger calls run with the lock released; only
	// the commit of resulting state re-acquires it.
	clientWallet, err := p.wallets.WalletFor(ctx, req.ClientOrgID)
	if err != nil {
		return types.Token{}, err
	}
	warehouse, err := p.wallets.CustodyWarehouse(ctx)
	if err != nil {
		return types.Token{}, err
	}
	issuerWallet, err := p.wallets.WalletFor(ctx, warehouse.ID)
	if err != nil {
		return types.Token{}, err
	}

	// Step 4: mint, unless a resumed checkpoint already carries the
	// issuance.
	if cp.Step != types.StepMinted {
		issuanceID, err := p.ledger.Mint(ctx, cp.Commitment, issuerWallet, cp.IdempotencyKey)
		if err != nil {
			return types.Token{}, mapLedgerErr(err)
		}
		cp.IssuanceID = issuanceID
		cp.Step = types.StepMinted
		if err := p.store.SaveCheckpoint(ctx, cp); err != nil {
			return types.Token{}, err
		}
		log.WithFields(log.Fields{"module": logModule, "asset": assetID, "issuance": issuanceID}).Info("token minted")
	}

	if err := p.ledger.Transfer(ctx, cp.IssuanceID, issuerWallet, clientWallet, cp.IdempotencyKey+":transfer"); err != nil {
		return types.Token{}, mapLedgerErr(err)
	}

	// Step 5: link token to asset under the lock.
	unlock := p.locks.Lock(assetID)
	defer unlock()

	if _, err := p.store.FindActiveTokenByAsset(ctx, assetID); err == nil {
		// A concurrent tokenize won the link step; its token is the truth.
		return types.Token{}, errors.New(errAlreadyTokenized)
	} else if !errors.Is(err, ports.ErrTokenNotFound) {
		return types.Token{}, err
	}

	id, err := newTokenUUID()
	if err != nil {
		return types.Token{}, err
	}
	token := types.Token{
		ID:           id,
		IssuanceID:   cp.IssuanceID,
		IssuerWallet: issuerWallet,
		HolderWallet: clientWallet,
		Amount:       req.Amount,
		Status:       types.TokenMinted,
		AssetID:      assetID,
		Commitment:   cp.Commitment,
	}
	if err := p.store.LinkToken(ctx, token, cp.BundleIDs); err != nil {
		return types.Token{}, err
	}
	return token, nil
}

// prepareMint validates preconditions and durably records the commitment
// checkpoint, resuming any prior incomplete attempt.
func (p *pipeline) prepareMint(ctx context.Context, assetID string) (types.MintCheckpoint, error) {
	unlock := p.locks.Lock(assetID)
	defer unlock()

	if _, err := p.store.FindActiveTokenByAsset(ctx, assetID); err == nil {
		return types.MintCheckpoint{}, errors.New(errAlreadyTokenized)
	} else if !errors.Is(err, ports.ErrTokenNotFound) {
		return types.MintCheckpoint{}, err
	}

	if cp, err := p.store.FindCheckpoint(ctx, assetID); err == nil {
		log.WithFields(log.Fields{"module": logModule, "asset": assetID, "step": cp.Step}).Info("resuming mint from checkpoint")
		return cp, nil
	} else if !errors.Is(err, ports.ErrCheckpointNotFound) {
		return types.MintCheckpoint{}, err
	}

	complete, err := p.bundles.AssetDocumentsComplete(ctx, assetID)
	if err != nil {
		return types.MintCheckpoint{}, err
	}
	if !complete {
		return types.MintCheckpoint{}, errors.New(errDocumentsIncomplete)
	}

	root, bundleIDs, err := p.commitmentForAsset(ctx, assetID)
	if err != nil {
		return types.MintCheckpoint{}, err
	}

	cp := types.MintCheckpoint{
		AssetID:        assetID,
		Step:           types.StepCommitted,
		Commitment:     root,
		IdempotencyKey: mintIdempotencyKey(assetID, root),
		BundleIDs:      bundleIDs,
	}
	if err := p.store.SaveCheckpoint(ctx, cp); err != nil {
		return types.MintCheckpoint{}, err
	}
	return cp, nil
}

func (p *pipeline) commitmentForAsset(ctx context.Context, assetID string) (string, []string, error) {
	bundles, err := p.bundles.LatestBundles(ctx, assetID)
	if err != nil {
		return "", nil, err
	}
	return commitmentForBundles(bundles)
}

func commitmentForBundles(bundles []documenttypes.DocumentBundle) (string, []string, error) {
	leaves := make([]commitment.Leaf, 0, len(bundles))
	bundleIDs := make([]string, 0, len(bundles))
	for _, b := range bundles {
		leaves = append(leaves, commitment.Leaf{
			DocumentType: string(b.Type),
			Version:      b.Version,
			ContentHash:  b.ContentHash,
		})
		bundleIDs = append(bundleIDs, b.ID)
	}
	root, err := commitment.Root(leaves)
	if err != nil {
		return "", nil, err
	}
	return root, bundleIDs, nil
}

func (p *pipeline) Preview(ctx context.Context, assetID string) (PreviewResult, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return PreviewResult{}, httperr.NewBadRequest("asset id is required")
	}

	bundles, err := p.bundles.LatestBundles(ctx, assetID)
	if err != nil {
		return PreviewResult{}, err
	}
	// An asset with nothing filed yet previews as empty, not as an error.
	if len(bundles) == 0 {
		return PreviewResult{}, nil
	}
	complete, err := p.bundles.AssetDocumentsComplete(ctx, assetID)
	if err != nil {
		return PreviewResult{}, err
	}
	root, bundleIDs, err := commitmentForBundles(bundles)
	if err != nil {
		return PreviewResult{}, err
	}
	return PreviewResult{
		Commitment:         root,
		DocumentsComplete:  complete,
		DocumentCount:      len(bundleIDs),
		RequiredSignatures: complete,
	}, nil
}

func (p *pipeline) Burn(ctx context.Context, tokenID string) error {
	unlock := p.locks.Lock(tokenID)
	token, err := p.store.FindToken(ctx, tokenID)
	if err != nil {
		unlock()
		return err
	}
	if token.Status == types.TokenBurned {
		// Retried burns after success are no-ops.
		unlock()
		return nil
	}

	warehouse, err := p.wallets.CustodyWarehouse(ctx)
	if err != nil {
		unlock()
		return err
	}
	unlock()

	warehouseWallet, err := p.wallets.WalletFor(ctx, warehouse.ID)
	if err != nil {
		return err
	}
	if token.HolderWallet != warehouseWallet {
		return httperr.NewPreconditionFailed(errWrongHolder)
	}

	// Ledger call outside the lock; the key makes a timeout-retry safe.
	if err := p.ledger.Burn(ctx, token.IssuanceID, token.HolderWallet, burnIdempotencyKey(token.IssuanceID)); err != nil {
		return mapLedgerErr(err)
	}

	unlock = p.locks.Lock(tokenID)
	defer unlock()
	if err := p.store.SetStatus(ctx, token.ID, types.TokenBurned); err != nil {
		return err
	}
	log.WithFields(log.Fields{"module": logModule, "token": token.ID, "issuance": token.IssuanceID}).Info("token burned")
	return nil
}

func (p *pipeline) TransferHolder(ctx context.Context, tokenID string, toWallet string, reason string) (types.Token, error) {
	unlock := p.locks.Lock(tokenID)
	token, err := p.store.FindToken(ctx, tokenID)
	if err != nil {
		unlock()
		return types.Token{}, err
	}
	if token.Status == types.TokenBurned {
		unlock()
		return types.Token{}, httperr.NewConflict(errTokenBurned)
	}
	if token.HolderWallet == toWallet {
		unlock()
		return token, nil
	}
	unlock()

	key := transferIdempotencyKey(token.IssuanceID, toWallet, reason)
	if err := p.ledger.Transfer(ctx, token.IssuanceID, token.HolderWallet, toWallet, key); err != nil {
		return types.Token{}, mapLedgerErr(err)
	}

	unlock = p.locks.Lock(tokenID)
	defer unlock()
	if err := p.store.SetHolder(ctx, token.ID, toWallet, types.TokenTransferred); err != nil {
		return types.Token{}, err
	}
	token.HolderWallet = toWallet
	token.Status = types.TokenTransferred
	return token, nil
}

func (p *pipeline) History(ctx context.Context, issuanceID string) ([]ports.LedgerEvent, error) {
	return p.ledger.History(ctx, issuanceID)
}

func (p *pipeline) FindActiveTokenByAsset(ctx context.Context, assetID string) (types.Token, error) {
	return p.store.FindActiveTokenByAsset(ctx, assetID)
}

func (p *pipeline) FindToken(ctx context.Context, tokenID string) (types.Token, error) {
	return p.store.FindToken(ctx, tokenID)
}

// mapLedgerErr keeps state-mismatch failures distinct: they halt mutation
// on the affected token until an operator reconciles.
func mapLedgerErr(err error) error {
	if errors.Is(err, ports.ErrLedgerStateMismatch) {
		return httperr.NewLedgerInconsistency(err.Error())
	}
	return err
}
