package ports

import (
	"context"
	"errors"
	"time"
)

// ErrLedgerStateMismatch is returned by ledger implementations when the
// requested mutation contradicts on-ledger state (e.g. transfer from a
// wallet that does not hold the issuance).
var ErrLedgerStateMismatch = errors.New("ledger_state_mismatch")

type LedgerEvent struct {
	Type       string
	FromWallet string
	ToWallet   string
	Amount     string
	OccurredAt time.Time
}

// Ledger is the external distributed-ledger collaborator. Every mutation
// takes a caller-supplied idempotency key: retrying after a timeout with
// the same key must not duplicate the action.
type Ledger interface {
	Mint(ctx context.Context, commitment string, issuerWallet string, idempotencyKey string) (issuanceID string, err error)
	Transfer(ctx context.Context, issuanceID string, fromWallet string, toWallet string, idempotencyKey string) error
	Burn(ctx context.Context, issuanceID string, wallet string, idempotencyKey string) error
	History(ctx context.Context, issuanceID string) ([]LedgerEvent, error)
}
