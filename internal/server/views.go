package server

import (
	"time"

	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
	endorsementtypes "github.com/vaultline/vaultline/modules/endorsement/domain/types"
	operationtypes "github.com/vaultline/vaultline/modules/operation/domain/types"
	signaturetypes "github.com/vaultline/vaultline/modules/signature/domain/types"
	tokenizationports "github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	tokenizationtypes "github.com/vaultline/vaultline/modules/tokenization/domain/types"
)

type organizationView struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	TaxID         string `json:"tax_id"`
	ContactEmail  string `json:"contact_email"`
	ContactName   string `json:"contact_name"`
	Active        bool   `json:"active"`
	WalletAddress string `json:"wallet_address,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func organizationToView(o directorytypes.Organization) organizationView {
	return organizationView{
		ID:            o.ID,
		Type:          string(o.Type),
		Name:          o.Name,
		TaxID:         o.TaxID,
		ContactEmail:  o.ContactEmail,
		ContactName:   o.ContactName,
		Active:        o.Active,
		WalletAddress: o.WalletAddress,
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type signatureSlotView struct {
	Signed   bool   `json:"signed"`
	SignedBy string `json:"signed_by,omitempty"`
	SignedAt string `json:"signed_at,omitempty"`
}

func slotToView(s documenttypes.SignatureSlot) signatureSlotView {
	v := signatureSlotView{Signed: s.Signed, SignedBy: s.SignedBy}
	if s.SignedAt != nil {
		v.SignedAt = s.SignedAt.UTC().Format(time.RFC3339)
	}
	return v
}

type bundleView struct {
	ID          string            `json:"id"`
	AssetID     string            `json:"asset_id"`
	Type        string            `json:"type"`
	Version     int               `json:"version"`
	ContentHash string            `json:"content_hash"`
	Warehouse   signatureSlotView `json:"warehouse"`
	Client      signatureSlotView `json:"client"`
	Bank        signatureSlotView `json:"bank"`
	CreatedAt   string            `json:"created_at"`
}

func bundleToView(b documenttypes.DocumentBundle) bundleView {
	return bundleView{
		ID:          b.ID,
		AssetID:     b.AssetID,
		Type:        string(b.Type),
		Version:     b.Version,
		ContentHash: b.ContentHash,
		Warehouse:   slotToView(b.Warehouse),
		Client:      slotToView(b.Client),
		Bank:        slotToView(b.Bank),
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func bundlesToViews(bs []documenttypes.DocumentBundle) []bundleView {
	out := make([]bundleView, 0, len(bs))
	for _, b := range bs {
		out = append(out, bundleToView(b))
	}
	return out
}

type envelopeDocumentView struct {
	BundleID    string `json:"bundle_id"`
	DocType     string `json:"doc_type"`
	ContentHash string `json:"content_hash"`
}

type envelopeView struct {
	ID           string                 `json:"id"`
	AssetID      string                 `json:"asset_id"`
	ExternalRef  string                 `json:"external_ref"`
	Status       string                 `json:"status"`
	Documents    []envelopeDocumentView `json:"documents"`
	LastSyncedAt string                 `json:"last_synced_at,omitempty"`
	CreatedAt    string                 `json:"created_at"`
}

func envelopeToView(e signaturetypes.Envelope) envelopeView {
	docs := make([]envelopeDocumentView, 0, len(e.Documents))
	for _, d := range e.Documents {
		docs = append(docs, envelopeDocumentView{
			BundleID:    d.BundleID,
			DocType:     string(d.DocType),
			ContentHash: d.ContentHash,
		})
	}
	v := envelopeView{
		ID:          e.ID,
		AssetID:     e.AssetID,
		ExternalRef: e.ExternalRef,
		Status:      string(e.Status),
		Documents:   docs,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.LastSyncedAt != nil {
		v.LastSyncedAt = e.LastSyncedAt.UTC().Format(time.RFC3339)
	}
	return v
}

type tokenView struct {
	ID           string `json:"id"`
	IssuanceID   string `json:"issuance_id"`
	IssuerWallet string `json:"issuer_wallet"`
	HolderWallet string `json:"holder_wallet"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
	AssetID      string `json:"asset_id"`
	Commitment   string `json:"commitment"`
	CreatedAt    string `json:"created_at"`
}

func tokenToView(t tokenizationtypes.Token) tokenView {
	return tokenView{
		ID:           t.ID,
		IssuanceID:   t.IssuanceID,
		IssuerWallet: t.IssuerWallet,
		HolderWallet: t.HolderWallet,
		Amount:       t.Amount.String(),
		Status:       string(t.Status),
		AssetID:      t.AssetID,
		Commitment:   t.Commitment,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type ledgerEventView struct {
	Type       string `json:"type"`
	FromWallet string `json:"from_wallet,omitempty"`
	ToWallet   string `json:"to_wallet,omitempty"`
	Amount     string `json:"amount"`
	OccurredAt string `json:"occurred_at"`
}

func ledgerEventsToViews(events []tokenizationports.LedgerEvent) []ledgerEventView {
	out := make([]ledgerEventView, 0, len(events))
	for _, e := range events {
		out = append(out, ledgerEventView{
			Type:       e.Type,
			FromWallet: e.FromWallet,
			ToWallet:   e.ToWallet,
			Amount:     e.Amount,
			OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

type endorsementView struct {
	ID            string `json:"id"`
	TokenID       string `json:"token_id"`
	AssetID       string `json:"asset_id"`
	ClientOrgID   string `json:"client_org_id"`
	BankOrgID     string `json:"bank_org_id"`
	Principal     string `json:"principal"`
	Rate          string `json:"rate"`
	RepaymentDate string `json:"repayment_date"`
	ClientSigned  bool   `json:"client_signed"`
	BankSigned    bool   `json:"bank_signed"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

func endorsementToView(e endorsementtypes.Endorsement) endorsementView {
	return endorsementView{
		ID:            e.ID,
		TokenID:       e.TokenID,
		AssetID:       e.AssetID,
		ClientOrgID:   e.ClientOrgID,
		BankOrgID:     e.BankOrgID,
		Principal:     e.Principal.String(),
		Rate:          e.Rate.String(),
		RepaymentDate: e.RepaymentDate.UTC().Format("2006-01-02"),
		ClientSigned:  e.ClientSigned,
		BankSigned:    e.BankSigned,
		Status:        string(e.Status),
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type assetView struct {
	ID            string `json:"id"`
	Serial        string `json:"serial"`
	Description   string `json:"description"`
	DeclaredValue string `json:"declared_value"`
	ClientOrgID   string `json:"client_org_id"`
	Status        string `json:"status"`
	TokenID       string `json:"token_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type operationView struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Stage     string      `json:"stage"`
	Assets    []assetView `json:"assets"`
	CreatedAt string      `json:"created_at"`
}

func operationToView(op operationtypes.Operation) operationView {
	assets := make([]assetView, 0, len(op.Assets))
	for _, a := range op.Assets {
		assets = append(assets, assetView{
			ID:            a.ID,
			Serial:        a.Serial,
			Description:   a.Description,
			DeclaredValue: a.DeclaredValue.String(),
			ClientOrgID:   a.ClientOrgID,
			Status:        string(a.Status),
			TokenID:       a.TokenID,
			CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return operationView{
		ID:        op.ID,
		Status:    string(op.Status),
		Stage:     string(op.Stage),
		Assets:    assets,
		CreatedAt: op.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type paymentLetterView struct {
	ID          string `json:"id"`
	OperationID string `json:"operation_id"`
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
	UploadedBy  string `json:"uploaded_by"`
	ApprovedBy  string `json:"approved_by,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func paymentLetterToView(l operationtypes.PaymentLetter) paymentLetterView {
	return paymentLetterView{
		ID:          l.ID,
		OperationID: l.OperationID,
		ContentHash: l.ContentHash,
		Status:      string(l.Status),
		UploadedBy:  l.UploadedBy,
		ApprovedBy:  l.ApprovedBy,
		CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
	}
}
