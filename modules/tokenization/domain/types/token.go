package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type TokenStatus string

const (
	TokenMinted      TokenStatus = "MINTED"
	TokenTransferred TokenStatus = "TRANSFERRED"
	TokenBurned      TokenStatus = "BURNED"
)

// Token is the ledger-backed representation of custody rights over one
// asset. Created exactly once per asset; burn is terminal.
type Token struct {
	ID           string
	IssuanceID   string
	IssuerWallet string
	HolderWallet string
	Amount       decimal.Decimal
	Status       TokenStatus
	AssetID      string
	Commitment   string
	CreatedAt    time.Time
}

type MintStep string

const (
	// StepCommitted: the commitment is persisted, no ledger call issued yet.
	StepCommitted MintStep = "COMMITTED"
	// StepMinted: the ledger mint succeeded; transfer/link may still be
	// outstanding.
	StepMinted MintStep = "MINTED"
)

// MintCheckpoint records the last durably completed mint step so a crash
// between steps resumes instead of re-executing ledger calls blindly.
type MintCheckpoint struct {
	AssetID        string
	Step           MintStep
	Commitment     string
	IssuanceID     string
	IdempotencyKey string
	BundleIDs      []string
	UpdatedAt      time.Time
}
