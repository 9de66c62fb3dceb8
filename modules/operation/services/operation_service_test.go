package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
	endorsementports "github.com/vaultline/vaultline/modules/endorsement/domain/ports"
	endorsementtypes "github.com/vaultline/vaultline/modules/endorsement/domain/types"
	"github.com/vaultline/vaultline/modules/operation/domain/ports"
	"github.com/vaultline/vaultline/modules/operation/domain/types"
	tokenizationports "github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	tokenizationtypes "github.com/vaultline/vaultline/modules/tokenization/domain/types"
	"github.com/vaultline/vaultline/pkg/httperr"
)

type stubOperationStore struct {
	insertOperationFn func(ctx context.Context, op types.Operation) error
	findOperationFn   func(ctx context.Context, operationID string) (types.Operation, error)
	listOperationsFn  func(ctx context.Context) ([]types.Operation, error)
	setOpStatusFn     func(ctx context.Context, operationID string, status types.OperationStatus) error
	insertAssetFn     func(ctx context.Context, a types.Asset) error
	findAssetFn       func(ctx context.Context, assetID string) (types.Asset, error)
	assetsFn          func(ctx context.Context, operationID string) ([]types.Asset, error)
	setAssetStatusFn  func(ctx context.Context, assetID string, status types.AssetStatus) error
	setAssetTokenFn   func(ctx context.Context, assetID string, tokenID string) error
	insertLetterFn    func(ctx context.Context, l types.PaymentLetter) error
	findLetterFn      func(ctx context.Context, operationID string) (types.PaymentLetter, error)
	setLetterStatusFn func(ctx context.Context, letterID string, status types.PaymentLetterStatus, approvedBy string) error
}

func (s *stubOperationStore) InsertOperation(ctx context.Context, op types.Operation) error {
	return s.insertOperationFn(ctx, op)
}

func (s *stubOperationStore) FindOperation(ctx context.Context, operationID string) (types.Operation, error) {
	return s.findOperationFn(ctx, operationID)
}

func (s *stubOperationStore) ListOperations(ctx context.Context) ([]types.Operation, error) {
	return s.listOperationsFn(ctx)
}

func (s *stubOperationStore) SetOperationStatus(ctx context.Context, operationID string, status types.OperationStatus) error {
	return s.setOpStatusFn(ctx, operationID, status)
}

func (s *stubOperationStore) InsertAsset(ctx context.Context, a types.Asset) error {
	return s.insertAssetFn(ctx, a)
}

func (s *stubOperationStore) FindAsset(ctx context.Context, assetID string) (types.Asset, error) {
	return s.findAssetFn(ctx, assetID)
}

func (s *stubOperationStore) AssetsForOperation(ctx context.Context, operationID string) ([]types.Asset, error) {
	return s.assetsFn(ctx, operationID)
}

func (s *stubOperationStore) SetAssetStatus(ctx context.Context, assetID string, status types.AssetStatus) error {
	return s.setAssetStatusFn(ctx, assetID, status)
}

func (s *stubOperationStore) SetAssetToken(ctx context.Context, assetID string, tokenID string) error {
	return s.setAssetTokenFn(ctx, assetID, tokenID)
}

func (s *stubOperationStore) InsertPaymentLetter(ctx context.Context, l types.PaymentLetter) error {
	return s.insertLetterFn(ctx, l)
}

func (s *stubOperationStore) FindLetterForOperation(ctx context.Context, operationID string) (types.PaymentLetter, error) {
	return s.findLetterFn(ctx, operationID)
}

func (s *stubOperationStore) SetLetterStatus(ctx context.Context, letterID string, status types.PaymentLetterStatus, approvedBy string) error {
	return s.setLetterStatusFn(ctx, letterID, status, approvedBy)
}

type stubPipeline struct {
	findActiveFn func(ctx context.Context, assetID string) (tokenizationtypes.Token, error)
	transferFn   func(ctx context.Context, tokenID string, toWallet string, reason string) (tokenizationtypes.Token, error)
	burnFn       func(ctx context.Context, tokenID string) error
}

func (s *stubPipeline) FindActiveTokenByAsset(ctx context.Context, assetID string) (tokenizationtypes.Token, error) {
	return s.findActiveFn(ctx, assetID)
}

func (s *stubPipeline) TransferHolder(ctx context.Context, tokenID string, toWallet string, reason string) (tokenizationtypes.Token, error) {
	return s.transferFn(ctx, tokenID, toWallet, reason)
}

func (s *stubPipeline) Burn(ctx context.Context, tokenID string) error {
	return s.burnFn(ctx, tokenID)
}

type stubBundles struct {
	completeFn func(ctx context.Context, assetID string) (bool, error)
	latestFn   func(ctx context.Context, assetID string) ([]documenttypes.DocumentBundle, error)
}

func (s *stubBundles) AssetDocumentsComplete(ctx context.Context, assetID string) (bool, error) {
	return s.completeFn(ctx, assetID)
}

func (s *stubBundles) LatestBundles(ctx context.Context, assetID string) ([]documenttypes.DocumentBundle, error) {
	return s.latestFn(ctx, assetID)
}

type stubWallets struct {
	walletForFn func(ctx context.Context, orgID string) (string, error)
	custodyFn   func(ctx context.Context) (directorytypes.Organization, error)
}

func (s *stubWallets) WalletFor(ctx context.Context, orgID string) (string, error) {
	return s.walletForFn(ctx, orgID)
}

func (s *stubWallets) CustodyWarehouse(ctx context.Context) (directorytypes.Organization, error) {
	return s.custodyFn(ctx)
}

type stubPledges struct {
	findOpenFn func(ctx context.Context, tokenID string) (endorsementtypes.Endorsement, error)
}

func (s *stubPledges) FindOpenByToken(ctx context.Context, tokenID string) (endorsementtypes.Endorsement, error) {
	return s.findOpenFn(ctx, tokenID)
}

func noPledges() *stubPledges {
	return &stubPledges{findOpenFn: func(_ context.Context, _ string) (endorsementtypes.Endorsement, error) {
		return endorsementtypes.Endorsement{}, endorsementports.ErrEndorsementNotFound
	}}
}

func happyWallets() *stubWallets {
	return &stubWallets{
		walletForFn: func(_ context.Context, orgID string) (string, error) { return "wlt:" + orgID, nil },
		custodyFn: func(_ context.Context) (directorytypes.Organization, error) {
			return directorytypes.Organization{ID: "wh-1", Type: directorytypes.OrgTypeWarehouse, Active: true}, nil
		},
	}
}

func signedDocs() *stubBundles {
	return &stubBundles{
		completeFn: func(_ context.Context, _ string) (bool, error) { return true, nil },
		latestFn: func(_ context.Context, _ string) ([]documenttypes.DocumentBundle, error) {
			return []documenttypes.DocumentBundle{{ID: "bundle-1"}}, nil
		},
	}
}

func twoAssetOperation(status types.OperationStatus) types.Operation {
	return types.Operation{
		ID:     "op-1",
		Status: status,
		Assets: []types.Asset{
			{ID: "asset-1", OperationID: "op-1", Status: types.AssetStored, ClientOrgID: "client-1"},
			{ID: "asset-2", OperationID: "op-1", Status: types.AssetStored, ClientOrgID: "client-1"},
		},
	}
}

var bankActor = Actor{OrgID: "bank-1", OrgType: directorytypes.OrgTypeBank}
var warehouseActor = Actor{OrgID: "wh-1", OrgType: directorytypes.OrgTypeWarehouse}
var operatorActor = Actor{OrgID: "operator-1", OrgType: directorytypes.OrgTypeOperator}

func TestCreateOperationStoresAssets(t *testing.T) {
	var inserted types.Operation
	store := &stubOperationStore{
		insertOperationFn: func(_ context.Context, op types.Operation) error {
			inserted = op
			return nil
		},
	}
	svc := NewOperationService(store, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	op, err := svc.Create(context.Background(), CreateOperationRequest{Assets: []AssetIntake{
		{Serial: "VIN-1", Description: "sedan", DeclaredValue: decimal.NewFromInt(30000), ClientOrgID: "client-1"},
		{Serial: "VIN-2", Description: "truck", DeclaredValue: decimal.NewFromInt(55000), ClientOrgID: "client-1"},
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if op.Status != types.OperationActive {
		t.Fatalf("status = %q", op.Status)
	}
	if len(inserted.Assets) != 2 {
		t.Fatalf("inserted %d assets", len(inserted.Assets))
	}
	for _, a := range inserted.Assets {
		if a.Status != types.AssetStored {
			t.Fatalf("asset status = %q", a.Status)
		}
		if a.OperationID != op.ID {
			t.Fatalf("asset operation = %q", a.OperationID)
		}
	}
}

func TestCreateOperationRequiresAssets(t *testing.T) {
	svc := NewOperationService(&stubOperationStore{}, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	_, err := svc.Create(context.Background(), CreateOperationRequest{})
	if err == nil || err.Error() != "OPERATION_HAS_NO_ASSETS" {
		t.Fatalf("err = %v, want OPERATION_HAS_NO_ASSETS", err)
	}
}

func TestGetDerivesTokenizingStage(t *testing.T) {
	// Three assets, two tokenized: the operation reports TOKENIZING, not
	// TOKENIZED.
	op := types.Operation{
		ID:     "op-1",
		Status: types.OperationActive,
		Assets: []types.Asset{
			{ID: "asset-1", Status: types.AssetStored},
			{ID: "asset-2", Status: types.AssetStored},
			{ID: "asset-3", Status: types.AssetStored},
		},
	}
	store := &stubOperationStore{
		findOperationFn: func(_ context.Context, _ string) (types.Operation, error) { return op, nil },
	}
	tokens := &stubPipeline{
		findActiveFn: func(_ context.Context, assetID string) (tokenizationtypes.Token, error) {
			if assetID == "asset-3" {
				return tokenizationtypes.Token{}, tokenizationports.ErrTokenNotFound
			}
			return tokenizationtypes.Token{ID: "tok-" + assetID, Status: tokenizationtypes.TokenMinted}, nil
		},
	}
	svc := NewOperationService(store, tokens, signedDocs(), happyWallets(), noPledges())
	got, err := svc.Get(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Stage != types.StageTokenizing {
		t.Fatalf("stage = %q, want TOKENIZING", got.Stage)
	}
}

func TestGetDerivesPledgedAssetState(t *testing.T) {
	op := types.Operation{
		ID:     "op-1",
		Status: types.OperationActive,
		Assets: []types.Asset{{ID: "asset-1", Status: types.AssetStored}},
	}
	store := &stubOperationStore{
		findOperationFn: func(_ context.Context, _ string) (types.Operation, error) { return op, nil },
	}
	tokens := &stubPipeline{
		findActiveFn: func(_ context.Context, _ string) (tokenizationtypes.Token, error) {
			return tokenizationtypes.Token{ID: "tok-1", Status: tokenizationtypes.TokenTransferred}, nil
		},
	}
	pledges := &stubPledges{findOpenFn: func(_ context.Context, tokenID string) (endorsementtypes.Endorsement, error) {
		return endorsementtypes.Endorsement{ID: "end-1", TokenID: tokenID, Status: endorsementtypes.EndorsementTransferred}, nil
	}}
	svc := NewOperationService(store, tokens, signedDocs(), happyWallets(), pledges)
	got, err := svc.Get(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Assets[0].Status != types.AssetPledged {
		t.Fatalf("asset status = %q, want PLEDGED", got.Assets[0].Status)
	}
}

func TestApprovePaymentLetterOperatorOnly(t *testing.T) {
	svc := NewOperationService(&stubOperationStore{}, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	_, err := svc.ApprovePaymentLetter(context.Background(), "op-1", bankActor)
	if !httperr.IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestApprovePaymentLetterIsIdempotent(t *testing.T) {
	setCalls := 0
	store := &stubOperationStore{
		findLetterFn: func(_ context.Context, _ string) (types.PaymentLetter, error) {
			return types.PaymentLetter{ID: "pl-1", Status: types.PaymentLetterApproved, ApprovedBy: "operator-1"}, nil
		},
		setLetterStatusFn: func(_ context.Context, _ string, _ types.PaymentLetterStatus, _ string) error {
			setCalls++
			return nil
		},
	}
	svc := NewOperationService(store, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	letter, err := svc.ApprovePaymentLetter(context.Background(), "op-1", operatorActor)
	if err != nil {
		t.Fatalf("ApprovePaymentLetter: %v", err)
	}
	if letter.Status != types.PaymentLetterApproved {
		t.Fatalf("status = %q", letter.Status)
	}
	if setCalls != 0 {
		t.Fatalf("status rewritten %d times", setCalls)
	}
}

func TestPaymentLetterReturnsCurrentLetter(t *testing.T) {
	store := &stubOperationStore{
		findOperationFn: func(_ context.Context, _ string) (types.Operation, error) {
			return types.Operation{ID: "op-1", Status: types.OperationActive}, nil
		},
		findLetterFn: func(_ context.Context, operationID string) (types.PaymentLetter, error) {
			if operationID != "op-1" {
				t.Fatalf("operation id = %q", operationID)
			}
			return types.PaymentLetter{ID: "pl-2", OperationID: "op-1", Status: types.PaymentLetterPending}, nil
		},
	}
	svc := NewOperationService(store, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	letter, err := svc.PaymentLetter(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("PaymentLetter: %v", err)
	}
	if letter.ID != "pl-2" {
		t.Fatalf("letter = %+v", letter)
	}
}

func TestPaymentLetterUnknownOperation(t *testing.T) {
	store := &stubOperationStore{
		findOperationFn: func(_ context.Context, _ string) (types.Operation, error) {
			return types.Operation{}, ports.ErrOperationNotFound
		},
	}
	svc := NewOperationService(store, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	if _, err := svc.PaymentLetter(context.Background(), "op-x"); !errors.Is(err, ports.ErrOperationNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestLiquidateRequiresBankActor(t *testing.T) {
	svc := NewOperationService(&stubOperationStore{}, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	_, err := svc.Liquidate(context.Background(), "op-1", warehouseActor)
	if !httperr.IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestLiquidateRequiresApprovedLetter(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		store := &stubOperationStore{
			findOperationFn: func(_ context.Context, _ string) (types.Operation, error) {
				return twoAssetOperation(types.OperationActive), nil
			},
			findLetterFn: func(_ context.Context, _ string) (types.PaymentLetter, error) {
				return types.PaymentLetter{}, ports.ErrPaymentLetterNotFound
			},
		}
		svc := NewOperationService(store, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
		_, err := svc.Liquidate(context.Background(), "op-1", bankActor)
		if !httperr.IsPreconditionFailed(err) {
			t.Fatalf("err = %v, want precondition failure", err)
		}
	})

	t.Run("pending", func(t *testing.T) {
		store := &stubOperationStore{
			findOperationFn: func(_ context.Context, _ string) (types.Operation, error) {
				return twoAssetOperation(types.OperationActive), nil
			},
			findLetterFn: func(_ context.Context, _ string) (types.PaymentLetter, error) {
				return types.PaymentLetter{ID: "pl-1", Status: types.PaymentLetterPending}, nil
			},
		}
		svc := NewOperationService(store, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
		_, err := svc.Liquidate(context.Background(), "op-1", bankActor)
		if !httperr.IsPreconditionFailed(err) {
			t.Fatalf("err = %v, want precondition failure", err)
		}
	})
}

func TestLiquidateConflictsWhenNotActive(t *testing.T) {
	store := &stubOperationStore{
		findOperationFn: func(_ context.Context, _ string) (types.Operation, error) {
			return twoAssetOperation(types.OperationLiquidated), nil
		},
	}
	svc := NewOperationService(store, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	_, err := svc.Liquidate(context.Background(), "op-1", bankActor)
	if !httperr.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestLiquidateTransfersTokensToWarehouse(t *testing.T) {
	var transferred []string
	statusSet := ""
	store := &stubOperationStore{
		findOperationFn: func(_ context.Context, _ string) (types.Operation, error) {
			return twoAssetOperation(types.OperationActive), nil
		},
		findLetterFn: func(_ context.Context, _ string) (types.PaymentLetter, error) {
			return types.PaymentLetter{ID: "pl-1", Status: types.PaymentLetterApproved}, nil
		},
		setOpStatusFn: func(_ context.Context, _ string, status types.OperationStatus) error {
			statusSet = string(status)
			return nil
		},
	}
	tokens := &stubPipeline{
		findActiveFn: func(_ context.Context, assetID string) (tokenizationtypes.Token, error) {
			return tokenizationtypes.Token{ID: "tok-" + assetID, Status: tokenizationtypes.TokenMinted}, nil
		},
		transferFn: func(_ context.Context, tokenID string, toWallet string, reason string) (tokenizationtypes.Token, error) {
			if toWallet != "wlt:wh-1" {
				t.Fatalf("transfer to %s", toWallet)
			}
			if reason != "liquidation:op-1" {
				t.Fatalf("reason = %q", reason)
			}
			transferred = append(transferred, tokenID)
			return tokenizationtypes.Token{ID: tokenID, HolderWallet: toWallet}, nil
		},
	}
	svc := NewOperationService(store, tokens, signedDocs(), happyWallets(), noPledges())
	op, err := svc.Liquidate(context.Background(), "op-1", bankActor)
	if err != nil {
		t.Fatalf("Liquidate: %v", err)
	}
	if op.Status != types.OperationLiquidated {
		t.Fatalf("status = %q", op.Status)
	}
	if statusSet != "LIQUIDATED" {
		t.Fatalf("persisted status = %q", statusSet)
	}
	if len(transferred) != 2 {
		t.Fatalf("transferred %d tokens", len(transferred))
	}
}

func TestCertifyDeliveryRequiresWarehouseActor(t *testing.T) {
	svc := NewOperationService(&stubOperationStore{}, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	_, err := svc.CertifyDelivery(context.Background(), "op-1", bankActor)
	if !httperr.IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestCertifyDeliveryConflictsBeforeLiquidation(t *testing.T) {
	store := &stubOperationStore{
		findOperationFn: func(_ context.Context, _ string) (types.Operation, error) {
			return twoAssetOperation(types.OperationActive), nil
		},
	}
	svc := NewOperationService(store, &stubPipeline{}, signedDocs(), happyWallets(), noPledges())
	_, err := svc.CertifyDelivery(context.Background(), "op-1", warehouseActor)
	if !httperr.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestCertifyDeliveryBurnsAndReleases(t *testing.T) {
	var burned []string
	var assetStatuses []types.AssetStatus
	store := &stubOperationStore{
		findOperationFn: func(_ context.Context, _ string) (types.Operation, error) {
			return twoAssetOperation(types.OperationLiquidated), nil
		},
		setOpStatusFn: func(_ context.Context, _ string, status types.OperationStatus) error {
			if status != types.OperationReleased {
				t.Fatalf("status = %q", status)
			}
			return nil
		},
		setAssetStatusFn: func(_ context.Context, _ string, status types.AssetStatus) error {
			assetStatuses = append(assetStatuses, status)
			return nil
		},
	}
	tokens := &stubPipeline{
		findActiveFn: func(_ context.Context, assetID string) (tokenizationtypes.Token, error) {
			for _, id := range burned {
				if id == "tok-"+assetID {
					return tokenizationtypes.Token{}, tokenizationports.ErrTokenNotFound
				}
			}
			return tokenizationtypes.Token{ID: "tok-" + assetID, Status: tokenizationtypes.TokenTransferred}, nil
		},
		burnFn: func(_ context.Context, tokenID string) error {
			burned = append(burned, tokenID)
			return nil
		},
	}
	svc := NewOperationService(store, tokens, signedDocs(), happyWallets(), noPledges())
	op, err := svc.CertifyDelivery(context.Background(), "op-1", warehouseActor)
	if err != nil {
		t.Fatalf("CertifyDelivery: %v", err)
	}
	if op.Status != types.OperationReleased {
		t.Fatalf("status = %q", op.Status)
	}
	if op.Stage != types.StageReleased {
		t.Fatalf("stage = %q", op.Stage)
	}
	if len(burned) != 2 {
		t.Fatalf("burned %d tokens", len(burned))
	}
	for _, st := range assetStatuses {
		if st != types.AssetDelivered {
			t.Fatalf("asset status = %q", st)
		}
	}
}

func TestCertifyDeliveryIsIdempotent(t *testing.T) {
	burnCalls := 0
	store := &stubOperationStore{
		findOperationFn: func(_ context.Context, _ string) (types.Operation, error) {
			op := twoAssetOperation(types.OperationReleased)
			for i := range op.Assets {
				op.Assets[i].Status = types.AssetDelivered
			}
			return op, nil
		},
	}
	tokens := &stubPipeline{
		findActiveFn: func(_ context.Context, _ string) (tokenizationtypes.Token, error) {
			return tokenizationtypes.Token{}, tokenizationports.ErrTokenNotFound
		},
		burnFn: func(_ context.Context, _ string) error {
			burnCalls++
			return nil
		},
	}
	svc := NewOperationService(store, tokens, signedDocs(), happyWallets(), noPledges())
	op, err := svc.CertifyDelivery(context.Background(), "op-1", warehouseActor)
	if err != nil {
		t.Fatalf("CertifyDelivery: %v", err)
	}
	if op.Status != types.OperationReleased {
		t.Fatalf("status = %q", op.Status)
	}
	if burnCalls != 0 {
		t.Fatalf("burn called %d times on released operation", burnCalls)
	}
}
