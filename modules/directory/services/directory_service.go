package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/vaultline/vaultline/modules/directory/domain/ports"
	"github.com/vaultline/vaultline/modules/directory/domain/types"
	"github.com/vaultline/vaultline/pkg/httperr"
)

const (
	errOrgTypeInvalid  = "ORG_TYPE_INVALID"
	errOrgInactive     = "ORG_INACTIVE"
	errOrgTaxIDInvalid = "ORG_TAX_ID_INVALID"
)

var newOrgUUID = func() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// newWalletAddress derives the custodial wallet reference handed to the
// ledger. Swappable in tests.
var newWalletAddress = func() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return "wlt:" + u.String(), nil
}

type DirectoryService interface {
	Register(ctx context.Context, req RegisterOrganizationRequest) (types.Organization, error)
	Resolve(ctx context.Context, orgID string) (types.Organization, error)
	// WalletFor returns the organization's custodial wallet, assigning one
	// on first use.
	WalletFor(ctx context.Context, orgID string) (string, error)
	// CustodyWarehouse resolves the active warehouse organization that
	// takes token control on liquidation.
	CustodyWarehouse(ctx context.Context) (types.Organization, error)
}

type RegisterOrganizationRequest struct {
	Type         types.OrgType
	Name         string
	TaxID        string
	ContactEmail string
	ContactName  string
}

type directoryService struct {
	store ports.DirectoryStore
}

func NewDirectoryService(store ports.DirectoryStore) DirectoryService {
	return &directoryService{store: store}
}

func (s *directoryService) Register(ctx context.Context, req RegisterOrganizationRequest) (types.Organization, error) {
	if !req.Type.Valid() {
		return types.Organization{}, httperr.NewBadRequest(errOrgTypeInvalid)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return types.Organization{}, httperr.NewBadRequest("name is required")
	}
	taxID := strings.TrimSpace(req.TaxID)
	if taxID == "" {
		return types.Organization{}, httperr.NewBadRequest(errOrgTaxIDInvalid)
	}

	id, err := newOrgUUID()
	if err != nil {
		return types.Organization{}, err
	}
	org := types.Organization{
		ID:           id,
		Type:         req.Type,
		Name:         name,
		TaxID:        taxID,
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		ContactName:  strings.TrimSpace(req.ContactName),
		Active:       true,
	}
	if err := s.store.InsertOrganization(ctx, org); err != nil {
		return types.Organization{}, err
	}
	return org, nil
}

func (s *directoryService) Resolve(ctx context.Context, orgID string) (types.Organization, error) {
	org, err := s.store.FindOrganization(ctx, strings.TrimSpace(orgID))
	if err != nil {
		return types.Organization{}, err
	}
	if !org.Active {
		return types.Organization{}, errors.New(errOrgInactive)
	}
	return org, nil
}

func (s *directoryService) WalletFor(ctx context.Context, orgID string) (string, error) {
	org, err := s.Resolve(ctx, orgID)
	if err != nil {
		return "", err
	}
	if org.WalletAddress != "" {
		return org.WalletAddress, nil
	}

	address, err := newWalletAddress()
	if err != nil {
		return "", err
	}
	if err := s.store.SetWallet(ctx, org.ID, address); err != nil {
		// A concurrent caller may have assigned first; the stored wallet
		// wins either way.
		if errors.Is(err, ports.ErrWalletAlreadySet) {
			refreshed, ferr := s.store.FindOrganization(ctx, org.ID)
			if ferr != nil {
				return "", ferr
			}
			return refreshed.WalletAddress, nil
		}
		return "", err
	}
	return address, nil
}

func (s *directoryService) CustodyWarehouse(ctx context.Context) (types.Organization, error) {
	warehouses, err := s.store.FindActiveByType(ctx, types.OrgTypeWarehouse)
	if err != nil {
		return types.Organization{}, err
	}
	if len(warehouses) == 0 {
		return types.Organization{}, ports.ErrOrganizationNotFound
	}
	return warehouses[0], nil
}
