package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	documentports "github.com/vaultline/vaultline/modules/documents/domain/ports"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
	endorsementports "github.com/vaultline/vaultline/modules/endorsement/domain/ports"
	endorsementtypes "github.com/vaultline/vaultline/modules/endorsement/domain/types"
	operationports "github.com/vaultline/vaultline/modules/operation/domain/ports"
	operationtypes "github.com/vaultline/vaultline/modules/operation/domain/types"
	tokenizationports "github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	tokenizationtypes "github.com/vaultline/vaultline/modules/tokenization/domain/types"
)

type memBundleStore struct {
	bundles map[string]documenttypes.DocumentBundle
}

func newMemBundleStore() *memBundleStore {
	return &memBundleStore{bundles: make(map[string]documenttypes.DocumentBundle)}
}

func (s *memBundleStore) InsertBundle(_ context.Context, b documenttypes.DocumentBundle) error {
	s.bundles[b.ID] = b
	return nil
}

func (s *memBundleStore) FindBundle(_ context.Context, bundleID string) (documenttypes.DocumentBundle, error) {
	b, ok := s.bundles[bundleID]
	if !ok {
		return documenttypes.DocumentBundle{}, documentports.ErrBundleNotFound
	}
	return b, nil
}

func (s *memBundleStore) LatestBundlesForAsset(_ context.Context, assetID string) ([]documenttypes.DocumentBundle, error) {
	latest := make(map[documenttypes.DocumentType]documenttypes.DocumentBundle)
	for _, b := range s.bundles {
		if b.AssetID != assetID {
			continue
		}
		if cur, ok := latest[b.Type]; !ok || b.Version > cur.Version {
			latest[b.Type] = b
		}
	}
	var out []documenttypes.DocumentBundle
	for _, b := range latest {
		out = append(out, b)
	}
	return out, nil
}

func (s *memBundleStore) SetSignatureSlot(_ context.Context, bundleID string, signer directorytypes.OrgType, signerIdentity string, at time.Time) error {
	b, ok := s.bundles[bundleID]
	if !ok {
		return documentports.ErrBundleNotFound
	}
	slot := documenttypes.SignatureSlot{Signed: true, SignedBy: signerIdentity, SignedAt: &at}
	switch signer {
	case directorytypes.OrgTypeWarehouse:
		if b.Warehouse.Signed {
			return documentports.ErrSlotAlreadySigned
		}
		b.Warehouse = slot
	case directorytypes.OrgTypeClient:
		if b.Client.Signed {
			return documentports.ErrSlotAlreadySigned
		}
		b.Client = slot
	case directorytypes.OrgTypeBank:
		if b.Bank.Signed {
			return documentports.ErrSlotAlreadySigned
		}
		b.Bank = slot
	}
	s.bundles[bundleID] = b
	return nil
}

func (s *memBundleStore) ReferencedByToken(context.Context, string) (bool, error) { return false, nil }

type memTokenStore struct {
	tokens      map[string]tokenizationtypes.Token
	checkpoints map[string]tokenizationtypes.MintCheckpoint
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{
		tokens:      make(map[string]tokenizationtypes.Token),
		checkpoints: make(map[string]tokenizationtypes.MintCheckpoint),
	}
}

func (s *memTokenStore) FindToken(_ context.Context, tokenID string) (tokenizationtypes.Token, error) {
	t, ok := s.tokens[tokenID]
	if !ok {
		return tokenizationtypes.Token{}, tokenizationports.ErrTokenNotFound
	}
	return t, nil
}

func (s *memTokenStore) FindActiveTokenByAsset(_ context.Context, assetID string) (tokenizationtypes.Token, error) {
	for _, t := range s.tokens {
		if t.AssetID == assetID && t.Status != tokenizationtypes.TokenBurned {
			return t, nil
		}
	}
	return tokenizationtypes.Token{}, tokenizationports.ErrTokenNotFound
}

func (s *memTokenStore) FindTokenByIssuance(_ context.Context, issuanceID string) (tokenizationtypes.Token, error) {
	for _, t := range s.tokens {
		if t.IssuanceID == issuanceID {
			return t, nil
		}
	}
	return tokenizationtypes.Token{}, tokenizationports.ErrTokenNotFound
}

func (s *memTokenStore) LinkToken(_ context.Context, token tokenizationtypes.Token, _ []string) error {
	s.tokens[token.ID] = token
	delete(s.checkpoints, token.AssetID)
	return nil
}

func (s *memTokenStore) SetHolder(_ context.Context, tokenID string, holderWallet string, status tokenizationtypes.TokenStatus) error {
	t, ok := s.tokens[tokenID]
	if !ok {
		return tokenizationports.ErrTokenNotFound
	}
	t.HolderWallet = holderWallet
	t.Status = status
	s.tokens[tokenID] = t
	return nil
}

func (s *memTokenStore) SetStatus(_ context.Context, tokenID string, status tokenizationtypes.TokenStatus) error {
	t, ok := s.tokens[tokenID]
	if !ok {
		return tokenizationports.ErrTokenNotFound
	}
	t.Status = status
	s.tokens[tokenID] = t
	return nil
}

func (s *memTokenStore) SaveCheckpoint(_ context.Context, cp tokenizationtypes.MintCheckpoint) error {
	s.checkpoints[cp.AssetID] = cp
	return nil
}

func (s *memTokenStore) FindCheckpoint(_ context.Context, assetID string) (tokenizationtypes.MintCheckpoint, error) {
	cp, ok := s.checkpoints[assetID]
	if !ok {
		return tokenizationtypes.MintCheckpoint{}, tokenizationports.ErrCheckpointNotFound
	}
	return cp, nil
}

type memEndorsementStore struct {
	ends map[string]endorsementtypes.Endorsement
}

func newMemEndorsementStore() *memEndorsementStore {
	return &memEndorsementStore{ends: make(map[string]endorsementtypes.Endorsement)}
}

func (s *memEndorsementStore) InsertEndorsement(_ context.Context, e endorsementtypes.Endorsement) error {
	s.ends[e.ID] = e
	return nil
}

func (s *memEndorsementStore) FindEndorsement(_ context.Context, endorsementID string) (endorsementtypes.Endorsement, error) {
	e, ok := s.ends[endorsementID]
	if !ok {
		return endorsementtypes.Endorsement{}, endorsementports.ErrEndorsementNotFound
	}
	return e, nil
}

func (s *memEndorsementStore) FindOpenByToken(_ context.Context, tokenID string) (endorsementtypes.Endorsement, error) {
	for _, e := range s.ends {
		if e.TokenID != tokenID {
			continue
		}
		if e.Status != endorsementtypes.EndorsementCompleted && e.Status != endorsementtypes.EndorsementCancelled {
			return e, nil
		}
	}
	return endorsementtypes.Endorsement{}, endorsementports.ErrEndorsementNotFound
}

func (s *memEndorsementStore) ListByAsset(_ context.Context, assetID string) ([]endorsementtypes.Endorsement, error) {
	var out []endorsementtypes.Endorsement
	for _, e := range s.ends {
		if e.AssetID == assetID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEndorsementStore) SetPartySigned(_ context.Context, endorsementID string, party endorsementtypes.Party) error {
	e, ok := s.ends[endorsementID]
	if !ok {
		return endorsementports.ErrEndorsementNotFound
	}
	if e.Status != endorsementtypes.EndorsementPending {
		return endorsementports.ErrEndorsementStale
	}
	if party == endorsementtypes.PartyClient {
		e.ClientSigned = true
	} else {
		e.BankSigned = true
	}
	if e.FullySigned() {
		e.Status = endorsementtypes.EndorsementSigned
	}
	s.ends[endorsementID] = e
	return nil
}

func (s *memEndorsementStore) SetStatus(_ context.Context, endorsementID string, from, to endorsementtypes.EndorsementStatus) error {
	e, ok := s.ends[endorsementID]
	if !ok {
		return endorsementports.ErrEndorsementNotFound
	}
	if e.Status != from {
		return endorsementports.ErrEndorsementStale
	}
	e.Status = to
	s.ends[endorsementID] = e
	return nil
}

type memOperationStore struct {
	ops     map[string]operationtypes.Operation
	letters []operationtypes.PaymentLetter
}

func newMemOperationStore() *memOperationStore {
	return &memOperationStore{ops: make(map[string]operationtypes.Operation)}
}

func (s *memOperationStore) InsertOperation(_ context.Context, op operationtypes.Operation) error {
	s.ops[op.ID] = op
	return nil
}

func (s *memOperationStore) FindOperation(_ context.Context, operationID string) (operationtypes.Operation, error) {
	op, ok := s.ops[operationID]
	if !ok {
		return operationtypes.Operation{}, operationports.ErrOperationNotFound
	}
	op.Assets = append([]operationtypes.Asset(nil), op.Assets...)
	return op, nil
}

func (s *memOperationStore) ListOperations(_ context.Context) ([]operationtypes.Operation, error) {
	var out []operationtypes.Operation
	for _, op := range s.ops {
		out = append(out, op)
	}
	return out, nil
}

func (s *memOperationStore) SetOperationStatus(_ context.Context, operationID string, status operationtypes.OperationStatus) error {
	op, ok := s.ops[operationID]
	if !ok {
		return operationports.ErrOperationNotFound
	}
	op.Status = status
	s.ops[operationID] = op
	return nil
}

func (s *memOperationStore) InsertAsset(_ context.Context, a operationtypes.Asset) error {
	op, ok := s.ops[a.OperationID]
	if !ok {
		return operationports.ErrOperationNotFound
	}
	op.Assets = append(op.Assets, a)
	s.ops[a.OperationID] = op
	return nil
}

func (s *memOperationStore) FindAsset(_ context.Context, assetID string) (operationtypes.Asset, error) {
	for _, op := range s.ops {
		for _, a := range op.Assets {
			if a.ID == assetID {
				return a, nil
			}
		}
	}
	return operationtypes.Asset{}, operationports.ErrAssetNotFound
}

func (s *memOperationStore) AssetsForOperation(_ context.Context, operationID string) ([]operationtypes.Asset, error) {
	op, ok := s.ops[operationID]
	if !ok {
		return nil, operationports.ErrOperationNotFound
	}
	return append([]operationtypes.Asset(nil), op.Assets...), nil
}

func (s *memOperationStore) SetAssetStatus(_ context.Context, assetID string, status operationtypes.AssetStatus) error {
	for id, op := range s.ops {
		for i := range op.Assets {
			if op.Assets[i].ID == assetID {
				op.Assets[i].Status = status
				s.ops[id] = op
				return nil
			}
		}
	}
	return operationports.ErrAssetNotFound
}

func (s *memOperationStore) SetAssetToken(_ context.Context, assetID string, tokenID string) error {
	for id, op := range s.ops {
		for i := range op.Assets {
			if op.Assets[i].ID == assetID {
				op.Assets[i].TokenID = tokenID
				s.ops[id] = op
				return nil
			}
		}
	}
	return operationports.ErrAssetNotFound
}

func (s *memOperationStore) InsertPaymentLetter(_ context.Context, l operationtypes.PaymentLetter) error {
	s.letters = append(s.letters, l)
	return nil
}

func (s *memOperationStore) FindLetterForOperation(_ context.Context, operationID string) (operationtypes.PaymentLetter, error) {
	for i := len(s.letters) - 1; i >= 0; i-- {
		if s.letters[i].OperationID == operationID {
			return s.letters[i], nil
		}
	}
	return operationtypes.PaymentLetter{}, operationports.ErrPaymentLetterNotFound
}

func (s *memOperationStore) SetLetterStatus(_ context.Context, letterID string, status operationtypes.PaymentLetterStatus, approvedBy string) error {
	for i := range s.letters {
		if s.letters[i].ID == letterID {
			s.letters[i].Status = status
			s.letters[i].ApprovedBy = approvedBy
			return nil
		}
	}
	return operationports.ErrPaymentLetterNotFound
}

type lifecycleEnv struct {
	handler  http.Handler
	verifier *stubVerifier
}

func newLifecycleEnv(t *testing.T) *lifecycleEnv {
	t.Helper()
	t.Setenv("ALLOWLIST_PATH", "../../config/routing/allowlist.yaml")

	verifier := &stubVerifier{}
	h, err := NewHandlerWithOptions(HandlerOptions{
		DirectoryStore:   newMemDirectoryStore(),
		BundleStore:      newMemBundleStore(),
		EnvelopeStore:    emptyEnvelopeStore{},
		TokenStore:       newMemTokenStore(),
		EndorsementStore: newMemEndorsementStore(),
		OperationStore:   newMemOperationStore(),
		EsignProvider:    noopEsign{},
		Ledger:           noopLedger{},
		TokenVerifier:    verifier,
		Authorizer:       &stubAuthorizer{allowedFn: func(string, string, string) bool { return true }},
	})
	if err != nil {
		t.Fatalf("NewHandlerWithOptions: %v", err)
	}
	return &lifecycleEnv{handler: h, verifier: verifier}
}

func (env *lifecycleEnv) as(p Principal) { env.verifier.principal = p }

func (env *lifecycleEnv) do(t *testing.T, method, target string, body any, wantCode int, out any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	if rec.Code != wantCode {
		t.Fatalf("%s %s: code = %d, want %d; body = %s", method, target, rec.Code, wantCode, rec.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, target, err)
		}
	}
}

func (env *lifecycleEnv) registerOrg(t *testing.T, orgType, name string) organizationView {
	t.Helper()
	var resp struct {
		Organization organizationView `json:"organization"`
	}
	env.do(t, http.MethodPost, "/directory/api/organizations", map[string]any{
		"type":          orgType,
		"name":          name,
		"tax_id":        "30-" + name,
		"contact_email": name + "@example.test",
		"contact_name":  name + " signer",
	}, http.StatusCreated, &resp)
	return resp.Organization
}

func contentHashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// TestOperationLifecycleEndToEnd drives one asset through the whole chain
// over the wired handler: intake, paperwork, tokenization, pledge and
// repayment, payment-letter approval, liquidation and delivery.
func TestOperationLifecycleEndToEnd(t *testing.T) {
	env := newLifecycleEnv(t)

	operator := Principal{Subject: "u-op", OrgID: "op-1", OrgType: directorytypes.OrgTypeOperator}
	env.as(operator)

	warehouse := env.registerOrg(t, "WAREHOUSE", "depot")
	client := env.registerOrg(t, "CLIENT", "mill")
	bank := env.registerOrg(t, "BANK", "lender")

	asWarehouse := Principal{Subject: "u-wh", OrgID: warehouse.ID, OrgType: directorytypes.OrgTypeWarehouse}
	asClient := Principal{Subject: "u-cl", OrgID: client.ID, OrgType: directorytypes.OrgTypeClient}
	asBank := Principal{Subject: "u-bk", OrgID: bank.ID, OrgType: directorytypes.OrgTypeBank}

	var opResp struct {
		Operation operationView `json:"operation"`
	}
	env.do(t, http.MethodPost, "/operation/api/operations", map[string]any{
		"assets": []map[string]any{{
			"serial":         "LOT-7",
			"description":    "cotton bales",
			"declared_value": "120000",
			"client_org_id":  client.ID,
		}},
	}, http.StatusCreated, &opResp)
	operationID := opResp.Operation.ID
	assetID := opResp.Operation.Assets[0].ID
	if opResp.Operation.Stage != "CREATED" {
		t.Fatalf("stage after intake = %s", opResp.Operation.Stage)
	}

	var bundleResp struct {
		Bundle bundleView `json:"bundle"`
	}
	env.do(t, http.MethodPost, "/documents/api/bundles", map[string]any{
		"asset_id":     assetID,
		"doc_type":     "DEPOSIT_CERT",
		"content_hash": contentHashOf("deposit cert v1"),
	}, http.StatusCreated, &bundleResp)

	env.as(asClient)
	env.do(t, http.MethodPost, "/documents/api/bundles:sign", map[string]any{
		"bundle_id": bundleResp.Bundle.ID, "signer_type": "CLIENT", "signer_identity": "mill signer",
	}, http.StatusOK, nil)
	env.as(asWarehouse)
	env.do(t, http.MethodPost, "/documents/api/bundles:sign", map[string]any{
		"bundle_id": bundleResp.Bundle.ID, "signer_type": "WAREHOUSE", "signer_identity": "depot signer",
	}, http.StatusOK, nil)

	env.as(operator)
	var getOp struct {
		Operation operationView `json:"operation"`
	}
	env.do(t, http.MethodGet, "/operation/api/operations?operation_id="+operationID, nil, http.StatusOK, &getOp)
	if getOp.Operation.Stage != "DOCUMENTS_SIGNED" {
		t.Fatalf("stage after signing = %s", getOp.Operation.Stage)
	}

	var tokResp struct {
		Token tokenView `json:"token"`
	}
	env.do(t, http.MethodPost, "/tokenization/api/tokens", map[string]any{
		"asset_id": assetID, "client_org_id": client.ID, "amount": "120000",
	}, http.StatusCreated, &tokResp)
	if tokResp.Token.Status != "MINTED" || tokResp.Token.Commitment == "" {
		t.Fatalf("token after mint = %+v", tokResp.Token)
	}
	clientWallet := tokResp.Token.HolderWallet

	env.as(asClient)
	var endResp struct {
		Endorsement endorsementView `json:"endorsement"`
	}
	env.do(t, http.MethodPost, "/endorsement/api/endorsements", map[string]any{
		"token_id":       tokResp.Token.ID,
		"client_org_id":  client.ID,
		"bank_org_id":    bank.ID,
		"principal":      "90000",
		"rate":           "0.12",
		"repayment_date": "2027-03-01",
	}, http.StatusCreated, &endResp)
	endorsementID := endResp.Endorsement.ID

	env.do(t, http.MethodPost, "/endorsement/api/endorsements:sign", map[string]any{
		"endorsement_id": endorsementID, "signer": "CLIENT",
	}, http.StatusOK, &endResp)
	env.as(asBank)
	env.do(t, http.MethodPost, "/endorsement/api/endorsements:sign", map[string]any{
		"endorsement_id": endorsementID, "signer": "BANK",
	}, http.StatusOK, &endResp)
	if endResp.Endorsement.Status != "SIGNED" {
		t.Fatalf("endorsement after both signatures = %s", endResp.Endorsement.Status)
	}

	env.do(t, http.MethodPost, "/endorsement/api/endorsements:execute", map[string]any{
		"endorsement_id": endorsementID,
	}, http.StatusOK, &endResp)
	if endResp.Endorsement.Status != "TRANSFERRED" {
		t.Fatalf("endorsement after execute = %s", endResp.Endorsement.Status)
	}

	env.as(operator)
	env.do(t, http.MethodGet, "/operation/api/operations?operation_id="+operationID, nil, http.StatusOK, &getOp)
	if getOp.Operation.Assets[0].Status != "PLEDGED" {
		t.Fatalf("asset while endorsed = %s", getOp.Operation.Assets[0].Status)
	}

	env.as(asClient)
	env.do(t, http.MethodPost, "/endorsement/api/endorsements:repay", map[string]any{
		"endorsement_id": endorsementID,
	}, http.StatusOK, &endResp)
	if endResp.Endorsement.Status != "COMPLETED" {
		t.Fatalf("endorsement after repay = %s", endResp.Endorsement.Status)
	}
	var tokGet struct {
		Token tokenView `json:"token"`
	}
	env.do(t, http.MethodGet, "/tokenization/api/tokens?token_id="+tokResp.Token.ID, nil, http.StatusOK, &tokGet)
	if tokGet.Token.HolderWallet != clientWallet {
		t.Fatalf("holder after repay = %s, want %s", tokGet.Token.HolderWallet, clientWallet)
	}

	var letterResp struct {
		PaymentLetter paymentLetterView `json:"payment_letter"`
	}
	env.do(t, http.MethodPost, "/operation/api/payment-letters", map[string]any{
		"operation_id": operationID, "content_hash": contentHashOf("payment proof"),
	}, http.StatusCreated, &letterResp)
	if letterResp.PaymentLetter.Status != "PENDING" {
		t.Fatalf("letter after upload = %s", letterResp.PaymentLetter.Status)
	}

	// An unapproved letter must keep liquidation gated.
	env.as(asBank)
	env.do(t, http.MethodPost, "/operation/api/operations:liquidate", map[string]any{
		"operation_id": operationID,
	}, http.StatusPreconditionFailed, nil)

	env.as(operator)
	env.do(t, http.MethodPost, "/operation/api/payment-letters:approve", map[string]any{
		"operation_id": operationID,
	}, http.StatusOK, &letterResp)
	if letterResp.PaymentLetter.Status != "APPROVED" {
		t.Fatalf("letter after approval = %s", letterResp.PaymentLetter.Status)
	}

	env.as(asBank)
	env.do(t, http.MethodPost, "/operation/api/operations:liquidate", map[string]any{
		"operation_id": operationID,
	}, http.StatusOK, &getOp)
	if getOp.Operation.Status != "LIQUIDATED" {
		t.Fatalf("operation after liquidation = %s", getOp.Operation.Status)
	}

	env.as(asWarehouse)
	env.do(t, http.MethodPost, "/operation/api/operations:certify-delivery", map[string]any{
		"operation_id": operationID,
	}, http.StatusOK, &getOp)
	if getOp.Operation.Status != "RELEASED" || getOp.Operation.Stage != "RELEASED" {
		t.Fatalf("operation after delivery = status %s stage %s", getOp.Operation.Status, getOp.Operation.Stage)
	}
	if getOp.Operation.Assets[0].Status != "DELIVERED" {
		t.Fatalf("asset after delivery = %s", getOp.Operation.Assets[0].Status)
	}

	// Re-certifying a released operation reports the same state without
	// re-burning.
	env.do(t, http.MethodPost, "/operation/api/operations:certify-delivery", map[string]any{
		"operation_id": operationID,
	}, http.StatusOK, &getOp)
	if getOp.Operation.Status != "RELEASED" {
		t.Fatalf("operation after repeat delivery = %s", getOp.Operation.Status)
	}

	env.as(operator)
	env.do(t, http.MethodGet, "/tokenization/api/tokens?token_id="+tokResp.Token.ID, nil, http.StatusOK, &tokGet)
	if tokGet.Token.Status != "BURNED" {
		t.Fatalf("token after delivery = %s", tokGet.Token.Status)
	}
}
