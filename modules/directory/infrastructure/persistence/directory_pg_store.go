package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/vaultline/vaultline/modules/directory/domain/ports"
	"github.com/vaultline/vaultline/modules/directory/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type DirectoryPGStore struct {
	pool pgBeginner
}

func NewDirectoryPGStore(pool pgBeginner) ports.DirectoryStore {
	return &DirectoryPGStore{pool: pool}
}

func (s *DirectoryPGStore) InsertOrganization(ctx context.Context, org types.Organization) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO organizations (id, org_type, name, tax_id, contact_email, contact_name, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		org.ID, string(org.Type), org.Name, org.TaxID, org.ContactEmail, org.ContactName, org.Active)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *DirectoryPGStore) FindOrganization(ctx context.Context, orgID string) (types.Organization, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Organization{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var org types.Organization
	var orgType string
	err = tx.QueryRow(ctx, `
		SELECT id, org_type, name, tax_id, contact_email, contact_name, active,
		       COALESCE(wallet_address, ''), created_at
		FROM organizations
		WHERE id = $1;`, orgID).Scan(
		&org.ID, &orgType, &org.Name, &org.TaxID, &org.ContactEmail, &org.ContactName,
		&org.Active, &org.WalletAddress, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Organization{}, ports.ErrOrganizationNotFound
		}
		return types.Organization{}, err
	}
	org.Type = types.OrgType(orgType)
	return org, nil
}

func (s *DirectoryPGStore) FindActiveByType(ctx context.Context, orgType types.OrgType) ([]types.Organization, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
		SELECT id, org_type, name, tax_id, contact_email, contact_name, active,
		       COALESCE(wallet_address, ''), created_at
		FROM organizations
		WHERE org_type = $1 AND active
		ORDER BY created_at;`, string(orgType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Organization
	for rows.Next() {
		var org types.Organization
		var rawType string
		if err := rows.Scan(&org.ID, &rawType, &org.Name, &org.TaxID, &org.ContactEmail,
			&org.ContactName, &org.Active, &org.WalletAddress, &org.CreatedAt); err != nil {
			return nil, err
		}
		org.Type = types.OrgType(rawType)
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s *DirectoryPGStore) SetWallet(ctx context.Context, orgID string, walletAddress string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
		UPDATE organizations
		SET wallet_address = $2
		WHERE id = $1 AND wallet_address IS NULL;`, orgID, walletAddress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1);`, orgID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ports.ErrOrganizationNotFound
		}
		return ports.ErrWalletAlreadySet
	}
	return tx.Commit(ctx)
}
