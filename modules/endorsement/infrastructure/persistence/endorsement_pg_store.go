package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/vaultline/vaultline/modules/endorsement/domain/ports"
	"github.com/vaultline/vaultline/modules/endorsement/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type EndorsementPGStore struct {
	pool pgBeginner
}

func NewEndorsementPGStore(pool pgBeginner) ports.EndorsementStore {
	return &EndorsementPGStore{pool: pool}
}

const endorsementColumns = `id, token_id, asset_id, client_org_id, bank_org_id, principal, rate, repayment_date, client_signed, bank_signed, status, created_at`

func (s *EndorsementPGStore) InsertEndorsement(ctx context.Context, e types.Endorsement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO endorsements (id, token_id, asset_id, client_org_id, bank_org_id, principal, rate, repayment_date, client_signed, bank_signed, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`,
		e.ID, e.TokenID, e.AssetID, e.ClientOrgID, e.BankOrgID,
		e.Principal, e.Rate, e.RepaymentDate, e.ClientSigned, e.BankSigned, string(e.Status))
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *EndorsementPGStore) FindEndorsement(ctx context.Context, endorsementID string) (types.Endorsement, error) {
	return s.findOne(ctx, `SELECT `+endorsementColumns+` FROM endorsements WHERE id = $1;`, endorsementID)
}

func (s *EndorsementPGStore) FindOpenByToken(ctx context.Context, tokenID string) (types.Endorsement, error) {
	return s.findOne(ctx, `
		SELECT `+endorsementColumns+` FROM endorsements
		WHERE token_id = $1 AND status NOT IN ($2, $3);`,
		tokenID, string(types.EndorsementCompleted), string(types.EndorsementCancelled))
}

func (s *EndorsementPGStore) findOne(ctx context.Context, query string, args ...any) (types.Endorsement, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Endorsement{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	e, err := scanEndorsement(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Endorsement{}, ports.ErrEndorsementNotFound
		}
		return types.Endorsement{}, err
	}
	return e, nil
}

func (s *EndorsementPGStore) ListByAsset(ctx context.Context, assetID string) ([]types.Endorsement, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
		SELECT `+endorsementColumns+` FROM endorsements
		WHERE asset_id = $1
		ORDER BY created_at;`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Endorsement
	for rows.Next() {
		e, err := scanEndorsement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EndorsementPGStore) SetPartySigned(ctx context.Context, endorsementID string, party types.Party) error {
	column, other := "client_signed", "bank_signed"
	if party == types.PartyBank {
		column, other = other, column
	}
	// The flag, the promotion to SIGNED and the still-PENDING guard live in
	// one statement, so two parties signing at once cannot lose a flag.
	query := `
		UPDATE endorsements
		SET ` + column + ` = true,
		    status = CASE WHEN ` + other + ` THEN $2 ELSE status END
		WHERE id = $1 AND status = $3;`
	return s.guardedUpdate(ctx, endorsementID, query,
		endorsementID, string(types.EndorsementSigned), string(types.EndorsementPending))
}

func (s *EndorsementPGStore) SetStatus(ctx context.Context, endorsementID string, from, to types.EndorsementStatus) error {
	return s.guardedUpdate(ctx, endorsementID, `
		UPDATE endorsements SET status = $2 WHERE id = $1 AND status = $3;`,
		endorsementID, string(to), string(from))
}

// guardedUpdate runs a check-and-set statement and distinguishes a missing
// row from one whose state moved underneath the caller.
func (s *EndorsementPGStore) guardedUpdate(ctx context.Context, endorsementID string, query string, args ...any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM endorsements WHERE id = $1);`, endorsementID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ports.ErrEndorsementStale
		}
		return ports.ErrEndorsementNotFound
	}
	return tx.Commit(ctx)
}

func scanEndorsement(row pgx.Row) (types.Endorsement, error) {
	var e types.Endorsement
	var status string
	err := row.Scan(
		&e.ID, &e.TokenID, &e.AssetID, &e.ClientOrgID, &e.BankOrgID,
		&e.Principal, &e.Rate, &e.RepaymentDate, &e.ClientSigned, &e.BankSigned,
		&status, &e.CreatedAt)
	if err != nil {
		return types.Endorsement{}, err
	}
	e.Status = types.EndorsementStatus(status)
	return e, nil
}
