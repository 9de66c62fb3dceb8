package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
	"github.com/vaultline/vaultline/modules/signature/domain/ports"
	"github.com/vaultline/vaultline/modules/signature/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type EnvelopePGStore struct {
	pool pgBeginner
}

func NewEnvelopePGStore(pool pgBeginner) ports.EnvelopeStore {
	return &EnvelopePGStore{pool: pool}
}

func (s *EnvelopePGStore) InsertEnvelope(ctx context.Context, env types.Envelope) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO envelopes (id, asset_id, external_ref, status)
		VALUES ($1, $2, $3, $4);`,
		env.ID, env.AssetID, env.ExternalRef, string(env.Status))
	if err != nil {
		return err
	}
	for _, doc := range env.Documents {
		_, err = tx.Exec(ctx, `
			INSERT INTO envelope_documents (envelope_id, bundle_id, doc_type, content_hash)
			VALUES ($1, $2, $3, $4);`,
			env.ID, doc.BundleID, string(doc.DocType), doc.ContentHash)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *EnvelopePGStore) FindEnvelope(ctx context.Context, envelopeID string) (types.Envelope, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Envelope{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	env, err := scanEnvelope(ctx, tx, envelopeID)
	if err != nil {
		return types.Envelope{}, err
	}
	return env, nil
}

func (s *EnvelopePGStore) ListOpenEnvelopes(ctx context.Context) ([]types.Envelope, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
		SELECT id FROM envelopes WHERE status = $1 ORDER BY created_at;`,
		string(types.EnvelopeOpen))
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

	var out []types.Envelope
	for _, id := range ids {
		env, err := scanEnvelope(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func (s *EnvelopePGStore) SetEnvelopeStatus(ctx context.Context, envelopeID string, status types.EnvelopeStatus, syncedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
		UPDATE envelopes SET status = $2, last_synced_at = $3 WHERE id = $1;`,
		envelopeID, string(status), syncedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrEnvelopeNotFound
	}
	return tx.Commit(ctx)
}

func scanEnvelope(ctx context.Context, tx pgx.Tx, envelopeID string) (types.Envelope, error) {
	var env types.Envelope
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id, asset_id, external_ref, status, last_synced_at, created_at
		FROM envelopes
		WHERE id = $1;`, envelopeID).Scan(
		&env.ID, &env.AssetID, &env.ExternalRef, &status, &env.LastSyncedAt, &env.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Envelope{}, ports.ErrEnvelopeNotFound
		}
		return types.Envelope{}, err
	}
	env.Status = types.EnvelopeStatus(status)

	rows, err := tx.Query(ctx, `
		SELECT bundle_id, doc_type, content_hash
		FROM envelope_documents
		WHERE envelope_id = $1
		ORDER BY doc_type;`, envelopeID)
	if err != nil {
		return types.Envelope{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var doc types.EnvelopeDocument
		var docType string
		if err := rows.Scan(&doc.BundleID, &docType, &doc.ContentHash); err != nil {
			return types.Envelope{}, err
		}
		doc.DocType = documenttypes.DocumentType(docType)
		env.Documents = append(env.Documents, doc)
	}
	return env, rows.Err()
}
