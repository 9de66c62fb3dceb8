package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	"github.com/vaultline/vaultline/modules/tokenization/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type TokenPGStore struct {
	pool pgBeginner
}

func NewTokenPGStore(pool pgBeginner) ports.TokenStore {
	return &TokenPGStore{pool: pool}
}

const tokenColumns = `id, issuance_id, issuer_wallet, holder_wallet, amount, status, asset_id, commitment, created_at`

func (s *TokenPGStore) FindToken(ctx context.Context, tokenID string) (types.Token, error) {
	return s.findOne(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1;`, tokenID)
}

func (s *TokenPGStore) FindActiveTokenByAsset(ctx context.Context, assetID string) (types.Token, error) {
	return s.findOne(ctx, `
		SELECT `+tokenColumns+` FROM tokens
		WHERE asset_id = $1 AND status <> $2;`, assetID, string(types.TokenBurned))
}

func (s *TokenPGStore) FindTokenByIssuance(ctx context.Context, issuanceID string) (types.Token, error) {
	return s.findOne(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE issuance_id = $1;`, issuanceID)
}

func (s *TokenPGStore) findOne(ctx context.Context, query string, args ...any) (types.Token, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Token{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var t types.Token
	var status string
	err = tx.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.IssuanceID, &t.IssuerWallet, &t.HolderWallet,
		&t.Amount, &status, &t.AssetID, &t.Commitment, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Token{}, ports.ErrTokenNotFound
		}
		return types.Token{}, err
	}
	t.Status = types.TokenStatus(status)
	return t, nil
}

func (s *TokenPGStore) LinkToken(ctx context.Context, token types.Token, bundleIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO tokens (id, issuance_id, issuer_wallet, holder_wallet, amount, status, asset_id, commitment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
		token.ID, token.IssuanceID, token.IssuerWallet, token.HolderWallet,
		token.Amount, string(token.Status), token.AssetID, token.Commitment)
	if err != nil {
		return err
	}
	for _, bundleID := range bundleIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO token_bundles (token_id, bundle_id) VALUES ($1, $2);`,
			token.ID, bundleID)
		if err != nil {
			return err
		}
	}
	// The mint attempt is complete; its checkpoint is no longer needed.
	_, err = tx.Exec(ctx, `DELETE FROM mint_checkpoints WHERE asset_id = $1;`, token.AssetID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *TokenPGStore) SetHolder(ctx context.Context, tokenID string, holderWallet string, status types.TokenStatus) error {
	return s.update(ctx, `
		UPDATE tokens SET holder_wallet = $2, status = $3 WHERE id = $1;`,
		tokenID, holderWallet, string(status))
}

func (s *TokenPGStore) SetStatus(ctx context.Context, tokenID string, status types.TokenStatus) error {
	return s.update(ctx, `
		UPDATE tokens SET status = $2 WHERE id = $1;`,
		tokenID, string(status))
}

func (s *TokenPGStore) update(ctx context.Context, query string, args ...any) error {
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
		return ports.ErrTokenNotFound
	}
	return tx.Commit(ctx)
}

func (s *TokenPGStore) SaveCheckpoint(ctx context.Context, cp types.MintCheckpoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO mint_checkpoints (asset_id, step, commitment, issuance_id, idempotency_key, bundle_ids, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (asset_id) DO UPDATE SET
			step = EXCLUDED.step,
			issuance_id = EXCLUDED.issuance_id,
			updated_at = EXCLUDED.updated_at;`,
		cp.AssetID, string(cp.Step), cp.Commitment, cp.IssuanceID,
		cp.IdempotencyKey, cp.BundleIDs, time.Now().UTC())
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *TokenPGStore) FindCheckpoint(ctx context.Context, assetID string) (types.MintCheckpoint, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.MintCheckpoint{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var cp types.MintCheckpoint
	var step string
	err = tx.QueryRow(ctx, `
		SELECT asset_id, step, commitment, issuance_id, idempotency_key, bundle_ids, updated_at
		FROM mint_checkpoints
		WHERE asset_id = $1;`, assetID).Scan(
		&cp.AssetID, &step, &cp.Commitment, &cp.IssuanceID,
		&cp.IdempotencyKey, &cp.BundleIDs, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.MintCheckpoint{}, ports.ErrCheckpointNotFound
		}
		return types.MintCheckpoint{}, err
	}
	cp.Step = types.MintStep(step)
	return cp, nil
}
