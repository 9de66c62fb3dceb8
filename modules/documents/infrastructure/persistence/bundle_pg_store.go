package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	"github.com/vaultline/vaultline/modules/documents/domain/ports"
	"github.com/vaultline/vaultline/modules/documents/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type BundlePGStore struct {
	pool pgBeginner
}

func NewBundlePGStore(pool pgBeginner) ports.BundleStore {
	return &BundlePGStore{pool: pool}
}

var slotColumns = map[directorytypes.OrgType]string{
	directorytypes.OrgTypeWarehouse: "warehouse",
	directorytypes.OrgTypeClient:    "client",
	directorytypes.OrgTypeBank:      "bank",
}

const bundleSelect = `
	SELECT id, asset_id, doc_type, version, content_hash,
	       warehouse_signed, COALESCE(warehouse_signed_by, ''), warehouse_signed_at,
	       client_signed, COALESCE(client_signed_by, ''), client_signed_at,
	       bank_signed, COALESCE(bank_signed_by, ''), bank_signed_at,
	       created_at
	FROM document_bundles`

func scanBundle(row pgx.Row) (types.DocumentBundle, error) {
	var b types.DocumentBundle
	var docType string
	err := row.Scan(&b.ID, &b.AssetID, &docType, &b.Version, &b.ContentHash,
		&b.Warehouse.Signed, &b.Warehouse.SignedBy, &b.Warehouse.SignedAt,
		&b.Client.Signed, &b.Client.SignedBy, &b.Client.SignedAt,
		&b.Bank.Signed, &b.Bank.SignedBy, &b.Bank.SignedAt,
		&b.CreatedAt)
	if err != nil {
		return types.DocumentBundle{}, err
	}
	b.Type = types.DocumentType(docType)
	return b, nil
}

func (s *BundlePGStore) InsertBundle(ctx context.Context, bundle types.DocumentBundle) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO document_bundles (id, asset_id, doc_type, version, content_hash)
		VALUES ($1, $2, $3, $4, $5);`,
		bundle.ID, bundle.AssetID, string(bundle.Type), bundle.Version, bundle.ContentHash)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *BundlePGStore) FindBundle(ctx context.Context, bundleID string) (types.DocumentBundle, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.DocumentBundle{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	b, err := scanBundle(tx.QueryRow(ctx, bundleSelect+` WHERE id = $1;`, bundleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.DocumentBundle{}, ports.ErrBundleNotFound
		}
		return types.DocumentBundle{}, err
	}
	return b, nil
}

func (s *BundlePGStore) LatestBundlesForAsset(ctx context.Context, assetID string) ([]types.DocumentBundle, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, bundleSelect+`
		WHERE asset_id = $1
		  AND (doc_type, version) IN (
			SELECT doc_type, MAX(version)
			FROM document_bundles
			WHERE asset_id = $1
			GROUP BY doc_type
		  )
		ORDER BY doc_type;`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.DocumentBundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BundlePGStore) SetSignatureSlot(ctx context.Context, bundleID string, signer directorytypes.OrgType, signerIdentity string, at time.Time) error {
	column, ok := slotColumns[signer]
	if !ok {
		return errors.New("bundle store: signer has no slot")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	// Check-and-set in one statement so concurrent completion events for
	// the same slot cannot both win.
	tag, err := tx.Exec(ctx, `
		UPDATE document_bundles
		SET `+column+`_signed = TRUE,
		    `+column+`_signed_by = $2,
		    `+column+`_signed_at = $3
		WHERE id = $1 AND NOT `+column+`_signed;`,
		bundleID, signerIdentity, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM document_bundles WHERE id = $1);`, bundleID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ports.ErrBundleNotFound
		}
		return ports.ErrSlotAlreadySigned
	}
	return tx.Commit(ctx)
}

func (s *BundlePGStore) ReferencedByToken(ctx context.Context, bundleID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var referenced bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM token_bundles tb
			JOIN tokens t ON t.id = tb.token_id
			WHERE tb.bundle_id = $1
		);`, bundleID).Scan(&referenced)
	if err != nil {
		return false, err
	}
	return referenced, nil
}
