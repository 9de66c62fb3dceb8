package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	directoryservices "github.com/vaultline/vaultline/modules/directory/services"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	"github.com/vaultline/vaultline/modules/endorsement/domain/ports"
	"github.com/vaultline/vaultline/modules/endorsement/domain/types"
	tokenizationservices "github.com/vaultline/vaultline/modules/tokenization/services"
	tokenizationtypes "github.com/vaultline/vaultline/modules/tokenization/domain/types"
	"github.com/vaultline/vaultline/pkg/httperr"
	"github.com/vaultline/vaultline/pkg/keylock"
)

const logModule = "endorsement"

var (
	errNotFullySigned     = errors.New("NOT_FULLY_SIGNED")
	errTokenNotMinted     = errors.New("TOKEN_NOT_MINTED")
	errTokenNotHeldByUser = errors.New("TOKEN_NOT_HELD_BY_CLIENT")
	errTokenAlreadyOpen   = errors.New("TOKEN_ALREADY_PLEDGED")
	errSignerTypeInvalid  = errors.New("SIGNER_TYPE_INVALID")
)

var newEndorsementUUID = func() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// tokenMover is the slice of the tokenization pipeline the engine drives.
type tokenMover interface {
	FindToken(ctx context.Context, tokenID string) (tokenizationtypes.Token, error)
	TransferHolder(ctx context.Context, tokenID string, toWallet string, reason string) (tokenizationtypes.Token, error)
}

type walletDirectory interface {
	WalletFor(ctx context.Context, orgID string) (string, error)
}

var (
	_ tokenMover      = tokenizationservices.Pipeline(nil)
	_ walletDirectory = directoryservices.DirectoryService(nil)
)

type CreateEndorsementRequest struct {
	TokenID       string
	ClientOrgID   string
	BankOrgID     string
	Principal     decimal.Decimal
	Rate          decimal.Decimal
	RepaymentDate time.Time
}

type EndorsementService interface {
	// Create opens a pledge of the client's token to the bank. The token
	// must be freshly minted and held by the pledging client.
	Create(ctx context.Context, req CreateEndorsementRequest) (types.Endorsement, error)
	// Sign records the client's or bank's agreement; when both are present
	// the endorsement becomes SIGNED and eligible for execution.
	Sign(ctx context.Context, endorsementID string, signer directorytypes.OrgType) (types.Endorsement, error)
	// Execute moves token control to the bank's wallet.
	Execute(ctx context.Context, endorsementID string) (types.Endorsement, error)
	// Repay returns token control to the client and completes the
	// endorsement. The only path that makes a bank-held token burnable
	// again.
	Repay(ctx context.Context, endorsementID string) (types.Endorsement, error)
	// Cancel abandons the endorsement before any token movement.
	Cancel(ctx context.Context, endorsementID string) (types.Endorsement, error)
	Get(ctx context.Context, endorsementID string) (types.Endorsement, error)
	ListByAsset(ctx context.Context, assetID string) ([]types.Endorsement, error)
}

type endorsementService struct {
	store   ports.EndorsementStore
	tokens  tokenMover
	wallets walletDirectory
	locks   *keylock.KeyLock
}

func NewEndorsementService(store ports.EndorsementStore, tokens tokenMover, wallets walletDirectory) EndorsementService {
	return &endorsementService{store: store, tokens: tokens, wallets: wallets, locks: keylock.New()}
}

func (s *endorsementService) Create(ctx context.Context, req CreateEndorsementRequest) (types.Endorsement, error) {
	if strings.TrimSpace(req.TokenID) == "" {
		return types.Endorsement{}, httperr.NewBadRequest("token id is required")
	}
	if strings.TrimSpace(req.ClientOrgID) == "" || strings.TrimSpace(req.BankOrgID) == "" {
		return types.Endorsement{}, httperr.NewBadRequest("client and bank org ids are required")
	}
	if req.Principal.Sign() <= 0 {
		return types.Endorsement{}, httperr.NewBadRequest("principal must be positive")
	}
	if req.Rate.Sign() < 0 {
		return types.Endorsement{}, httperr.NewBadRequest("rate must not be negative")
	}
	if req.RepaymentDate.IsZero() {
		return types.Endorsement{}, httperr.NewBadRequest("repayment date is required")
	}

	token, err := s.tokens.FindToken(ctx, req.TokenID)
	if err != nil {
		return types.Endorsement{}, err
	}
	if token.Status != tokenizationtypes.TokenMinted {
		return types.Endorsement{}, errTokenNotMinted
	}
	clientWallet, err := s.wallets.WalletFor(ctx, req.ClientOrgID)
	if err != nil {
		return types.Endorsement{}, err
	}
	if token.HolderWallet != clientWallet {
		return types.Endorsement{}, errTokenNotHeldByUser
	}

	if _, err := s.store.FindOpenByToken(ctx, req.TokenID); err == nil {
		return types.Endorsement{}, errTokenAlreadyOpen
	} else if !errors.Is(err, ports.ErrEndorsementNotFound) {
		return types.Endorsement{}, err
	}

	id, err := newEndorsementUUID()
	if err != nil {
		return types.Endorsement{}, err
	}
	e := types.Endorsement{
		ID:            id,
		TokenID:       token.ID,
		AssetID:       token.AssetID,
		ClientOrgID:   req.ClientOrgID,
		BankOrgID:     req.BankOrgID,
		Principal:     req.Principal,
		Rate:          req.Rate,
		RepaymentDate: req.RepaymentDate,
		Status:        types.EndorsementPending,
	}
	if err := s.store.InsertEndorsement(ctx, e); err != nil {
		return types.Endorsement{}, err
	}
	log.WithFields(log.Fields{"module": logModule, "endorsement": e.ID, "token": e.TokenID}).Info("endorsement created")
	return e, nil
}

func (s *endorsementService) Sign(ctx context.Context, endorsementID string, signer directorytypes.OrgType) (types.Endorsement, error) {
	var party types.Party
	switch signer {
	case directorytypes.OrgTypeClient:
		party = types.PartyClient
	case directorytypes.OrgTypeBank:
		party = types.PartyBank
	default:
		return types.Endorsement{}, errSignerTypeInvalid
	}

	unlock := s.locks.Lock(endorsementID)
	defer unlock()

	e, err := s.store.FindEndorsement(ctx, endorsementID)
	if err != nil {
		return types.Endorsement{}, err
	}
	if e.Status != types.EndorsementPending {
		return types.Endorsement{}, httperr.NewConflict("endorsement is not awaiting signatures")
	}
	if err := s.store.SetPartySigned(ctx, e.ID, party); err != nil {
		if errors.Is(err, ports.ErrEndorsementStale) {
			return types.Endorsement{}, httperr.NewConflict("endorsement is not awaiting signatures")
		}
		return types.Endorsement{}, err
	}
	if party == types.PartyClient {
		e.ClientSigned = true
	} else {
		e.BankSigned = true
	}
	if e.FullySigned() {
		e.Status = types.EndorsementSigned
	}
	return e, nil
}

func (s *endorsementService) Execute(ctx context.Context, endorsementID string) (types.Endorsement, error) {
	// Validate under the endorsement lock; the ledger transfer runs with it
	// released and only the status commit re-acquires it.
	unlock := s.locks.Lock(endorsementID)
	e, err := s.store.FindEndorsement(ctx, endorsementID)
	if err != nil {
		unlock()
		return types.Endorsement{}, err
	}
	if e.Status != types.EndorsementSigned {
		unlock()
		return types.Endorsement{}, errNotFullySigned
	}
	unlock()

	bankWallet, err := s.wallets.WalletFor(ctx, e.BankOrgID)
	if err != nil {
		return types.Endorsement{}, err
	}
	if _, err := s.tokens.TransferHolder(ctx, e.TokenID, bankWallet, "endorsement:"+e.ID); err != nil {
		return types.Endorsement{}, err
	}

	unlock = s.locks.Lock(endorsementID)
	defer unlock()
	if err := s.store.SetStatus(ctx, e.ID, types.EndorsementSigned, types.EndorsementTransferred); err != nil {
		if errors.Is(err, ports.ErrEndorsementStale) {
			// A concurrent Execute committed first; the transfer was
			// idempotent, so report the stored state.
			return s.store.FindEndorsement(ctx, e.ID)
		}
		return types.Endorsement{}, err
	}
	e.Status = types.EndorsementTransferred
	log.WithFields(log.Fields{"module": logModule, "endorsement": e.ID, "token": e.TokenID}).Info("endorsement executed")
	return e, nil
}

func (s *endorsementService) Repay(ctx context.Context, endorsementID string) (types.Endorsement, error) {
	unlock := s.locks.Lock(endorsementID)
	e, err := s.store.FindEndorsement(ctx, endorsementID)
	if err != nil {
		unlock()
		return types.Endorsement{}, err
	}
	if e.Status != types.EndorsementTransferred {
		unlock()
		return types.Endorsement{}, httperr.NewConflict("endorsement has not been executed")
	}
	unlock()

	clientWallet, err := s.wallets.WalletFor(ctx, e.ClientOrgID)
	if err != nil {
		return types.Endorsement{}, err
	}
	if _, err := s.tokens.TransferHolder(ctx, e.TokenID, clientWallet, "repayment:"+e.ID); err != nil {
		return types.Endorsement{}, err
	}

	unlock = s.locks.Lock(endorsementID)
	defer unlock()
	if err := s.store.SetStatus(ctx, e.ID, types.EndorsementTransferred, types.EndorsementCompleted); err != nil {
		if errors.Is(err, ports.ErrEndorsementStale) {
			return s.store.FindEndorsement(ctx, e.ID)
		}
		return types.Endorsement{}, err
	}
	e.Status = types.EndorsementCompleted
	log.WithFields(log.Fields{"module": logModule, "endorsement": e.ID, "token": e.TokenID}).Info("endorsement repaid")
	return e, nil
}

func (s *endorsementService) Cancel(ctx context.Context, endorsementID string) (types.Endorsement, error) {
	unlock := s.locks.Lock(endorsementID)
	defer unlock()

	e, err := s.store.FindEndorsement(ctx, endorsementID)
	if err != nil {
		return types.Endorsement{}, err
	}
	if !e.Cancellable() {
		return types.Endorsement{}, httperr.NewConflict("endorsement can no longer be cancelled")
	}
	// The from-status guard keeps a cancel racing an execute in another
	// process from overwriting TRANSFERRED.
	if err := s.store.SetStatus(ctx, e.ID, e.Status, types.EndorsementCancelled); err != nil {
		if errors.Is(err, ports.ErrEndorsementStale) {
			return types.Endorsement{}, httperr.NewConflict("endorsement can no longer be cancelled")
		}
		return types.Endorsement{}, err
	}
	e.Status = types.EndorsementCancelled
	return e, nil
}

func (s *endorsementService) Get(ctx context.Context, endorsementID string) (types.Endorsement, error) {
	return s.store.FindEndorsement(ctx, endorsementID)
}

func (s *endorsementService) ListByAsset(ctx context.Context, assetID string) ([]types.Endorsement, error) {
	return s.store.ListByAsset(ctx, assetID)
}
