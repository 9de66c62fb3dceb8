package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/vaultline/vaultline/modules/operation/domain/ports"
	"github.com/vaultline/vaultline/modules/operation/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type OperationPGStore struct {
	pool pgBeginner
}

func NewOperationPGStore(pool pgBeginner) ports.OperationStore {
	return &OperationPGStore{pool: pool}
}

func (s *OperationPGStore) InsertOperation(ctx context.Context, op types.Operation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO operations (id, status) VALUES ($1, $2);`,
		op.ID, string(op.Status))
	if err != nil {
		return err
	}
	for _, a := range op.Assets {
		if err := insertAsset(ctx, tx, a); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertAsset(ctx context.Context, tx pgx.Tx, a types.Asset) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO assets (id, operation_id, serial, description, declared_value, client_org_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		a.ID, a.OperationID, a.Serial, a.Description, a.DeclaredValue, a.ClientOrgID, string(a.Status))
	return err
}

func (s *OperationPGStore) FindOperation(ctx context.Context, operationID string) (types.Operation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Operation{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	op, err := scanOperation(ctx, tx, operationID)
	if err != nil {
		return types.Operation{}, err
	}
	return op, nil
}

func (s *OperationPGStore) ListOperations(ctx context.Context) ([]types.Operation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `SELECT id FROM operations ORDER BY created_at;`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []types.Operation
	for _, id := range ids {
		op, err := scanOperation(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func (s *OperationPGStore) SetOperationStatus(ctx context.Context, operationID string, status types.OperationStatus) error {
	return s.update(ctx, `
		UPDATE operations SET status = $2 WHERE id = $1;`,
		ports.ErrOperationNotFound, operationID, string(status))
}

func (s *OperationPGStore) InsertAsset(ctx context.Context, a types.Asset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := insertAsset(ctx, tx, a); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *OperationPGStore) FindAsset(ctx context.Context, assetID string) (types.Asset, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Asset{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	a, err := scanAsset(tx.QueryRow(ctx, `
		SELECT `+assetColumns+` FROM assets WHERE id = $1;`, assetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Asset{}, ports.ErrAssetNotFound
		}
		return types.Asset{}, err
	}
	return a, nil
}

func (s *OperationPGStore) AssetsForOperation(ctx context.Context, operationID string) ([]types.Asset, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	return assetsForOperation(ctx, tx, operationID)
}

func (s *OperationPGStore) SetAssetStatus(ctx context.Context, assetID string, status types.AssetStatus) error {
	return s.update(ctx, `
		UPDATE assets SET status = $2 WHERE id = $1;`,
		ports.ErrAssetNotFound, assetID, string(status))
}

func (s *OperationPGStore) SetAssetToken(ctx context.Context, assetID string, tokenID string) error {
	return s.update(ctx, `
		UPDATE assets SET token_id = $2 WHERE id = $1;`,
		ports.ErrAssetNotFound, assetID, tokenID)
}

func (s *OperationPGStore) InsertPaymentLetter(ctx context.Context, l types.PaymentLetter) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO payment_letters (id, operation_id, content_hash, status, uploaded_by)
		VALUES ($1, $2, $3, $4, $5);`,
		l.ID, l.OperationID, l.ContentHash, string(l.Status), l.UploadedBy)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *OperationPGStore) FindLetterForOperation(ctx context.Context, operationID string) (types.PaymentLetter, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.PaymentLetter{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var l types.PaymentLetter
	var status string
	var approvedBy *string
	err = tx.QueryRow(ctx, `
		SELECT id, operation_id, content_hash, status, uploaded_by, approved_by, created_at
		FROM payment_letters
		WHERE operation_id = $1
		ORDER BY created_at DESC
		LIMIT 1;`, operationID).Scan(
		&l.ID, &l.OperationID, &l.ContentHash, &status, &l.UploadedBy, &approvedBy, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.PaymentLetter{}, ports.ErrPaymentLetterNotFound
		}
		return types.PaymentLetter{}, err
	}
	l.Status = types.PaymentLetterStatus(status)
	if approvedBy != nil {
		l.ApprovedBy = *approvedBy
	}
	return l, nil
}

func (s *OperationPGStore) SetLetterStatus(ctx context.Context, letterID string, status types.PaymentLetterStatus, approvedBy string) error {
	return s.update(ctx, `
		UPDATE payment_letters SET status = $2, approved_by = $3 WHERE id = $1;`,
		ports.ErrPaymentLetterNotFound, letterID, string(status), approvedBy)
}

func (s *OperationPGStore) update(ctx context.Context, query string, notFound error, args ...any) error {
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
		return notFound
	}
	return tx.Commit(ctx)
}

const assetColumns = `id, operation_id, serial, description, declared_value, client_org_id, status, token_id, created_at`

func scanOperation(ctx context.Context, tx pgx.Tx, operationID string) (types.Operation, error) {
	var op types.Operation
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id, status, created_at FROM operations WHERE id = $1;`,
		operationID).Scan(&op.ID, &status, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Operation{}, ports.ErrOperationNotFound
		}
		return types.Operation{}, err
	}
	op.Status = types.OperationStatus(status)

	op.Assets, err = assetsForOperation(ctx, tx, operationID)
	if err != nil {
		return types.Operation{}, err
	}
	return op, nil
}

func assetsForOperation(ctx context.Context, tx pgx.Tx, operationID string) ([]types.Asset, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE operation_id = $1
		ORDER BY created_at;`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAsset(row pgx.Row) (types.Asset, error) {
	var a types.Asset
	var status string
	var tokenID *string
	err := row.Scan(
		&a.ID, &a.OperationID, &a.Serial, &a.Description, &a.DeclaredValue,
		&a.ClientOrgID, &status, &tokenID, &a.CreatedAt)
	if err != nil {
		return types.Asset{}, err
	}
	a.Status = types.AssetStatus(status)
	if tokenID != nil {
		a.TokenID = *tokenID
	}
	return a, nil
}
