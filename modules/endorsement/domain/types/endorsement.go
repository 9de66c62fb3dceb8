package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Party identifies which side of the endorsement is acting.
type Party string

const (
	PartyClient Party = "CLIENT"
	PartyBank   Party = "BANK"
)

type EndorsementStatus string

const (
	// EndorsementPending: created, awaiting signatures from both parties.
	EndorsementPending EndorsementStatus = "PENDING"
	// EndorsementSigned: both client and bank signed; token not yet moved.
	EndorsementSigned EndorsementStatus = "SIGNED"
	// EndorsementTransferred: token control sits with the bank.
	EndorsementTransferred EndorsementStatus = "TRANSFERRED"
	// EndorsementCompleted: principal repaid, token returned to the client.
	EndorsementCompleted EndorsementStatus = "COMPLETED"
	// EndorsementCancelled: abandoned before the token moved. Terminal.
	EndorsementCancelled EndorsementStatus = "CANCELLED"
)

// Endorsement pledges a client's token to a bank as loan collateral. The
// token itself moves on execution and returns on repayment; the endorsement
// records the credit terms around that movement.
type Endorsement struct {
	ID            string
	TokenID       string
	AssetID       string
	ClientOrgID   string
	BankOrgID     string
	Principal     decimal.Decimal
	Rate          decimal.Decimal
	RepaymentDate time.Time
	ClientSigned  bool
	BankSigned    bool
	Status        EndorsementStatus
	CreatedAt     time.Time
}

func (e Endorsement) FullySigned() bool {
	return e.ClientSigned && e.BankSigned
}

// Cancellable reports whether the endorsement can still be abandoned; once
// the token has moved, only repayment unwinds it.
func (e Endorsement) Cancellable() bool {
	return e.Status == EndorsementPending || e.Status == EndorsementSigned
}
