package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type OperationStatus string

const (
	OperationActive     OperationStatus = "ACTIVE"
	OperationLiquidated OperationStatus = "LIQUIDATED"
	OperationReleased   OperationStatus = "RELEASED"
)

// statusRank orders the monotonic lifecycle; transitions never go backward.
func statusRank(s OperationStatus) int {
	switch s {
	case OperationActive:
		return 0
	case OperationLiquidated:
		return 1
	case OperationReleased:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving to next respects the monotonic
// ACTIVE → LIQUIDATED → RELEASED order.
func (s OperationStatus) CanAdvanceTo(next OperationStatus) bool {
	return statusRank(next) == statusRank(s)+1
}

type AssetStatus string

const (
	AssetStored    AssetStatus = "STORED"
	AssetPledged   AssetStatus = "PLEDGED"
	AssetDelivered AssetStatus = "DELIVERED"
	AssetBurned    AssetStatus = "BURNED"
)

func (s AssetStatus) Terminal() bool {
	return s == AssetDelivered || s == AssetBurned
}

// Asset is a physical item in custody. PLEDGED is never stored; it is
// derived from the token's holder so the two can't drift apart.
type Asset struct {
	ID            string
	OperationID   string
	Serial        string
	Description   string
	DeclaredValue decimal.Decimal
	ClientOrgID   string
	Status        AssetStatus
	TokenID       string
	CreatedAt     time.Time
}

type PaymentLetterStatus string

const (
	PaymentLetterPending  PaymentLetterStatus = "PENDING"
	PaymentLetterApproved PaymentLetterStatus = "APPROVED"
)

// PaymentLetter gates liquidation: a bank may liquidate only after the
// operator approves the client's payment evidence.
type PaymentLetter struct {
	ID          string
	OperationID string
	ContentHash string
	Status      PaymentLetterStatus
	UploadedBy  string
	ApprovedBy  string
	CreatedAt   time.Time
}

type Operation struct {
	ID        string
	Status    OperationStatus
	Stage     Stage
	Assets    []Asset
	CreatedAt time.Time
}
