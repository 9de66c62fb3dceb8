package types

import (
	"time"

	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
)

type DocumentType string

const (
	DocTypeDepositCert    DocumentType = "DEPOSIT_CERT"
	DocTypePledgeBond     DocumentType = "PLEDGE_BOND"
	DocTypePromissoryNote DocumentType = "PROMISSORY_NOTE"
	DocTypeEndorsement    DocumentType = "ENDORSEMENT"
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocTypeDepositCert, DocTypePledgeBond, DocTypePromissoryNote, DocTypeEndorsement:
		return true
	}
	return false
}

type SignatureSlot struct {
	Signed   bool
	SignedBy string
	SignedAt *time.Time
}

// DocumentBundle is one version of a legal document backing an asset.
// Regeneration creates a new version; a fully signed version referenced by
// a minted token is immutable.
type DocumentBundle struct {
	ID          string
	AssetID     string
	Type        DocumentType
	Version     int
	ContentHash string
	Warehouse   SignatureSlot
	Client      SignatureSlot
	Bank        SignatureSlot
	CreatedAt   time.Time
}

func (b DocumentBundle) Slot(signer directorytypes.OrgType) (SignatureSlot, bool) {
	switch signer {
	case directorytypes.OrgTypeWarehouse:
		return b.Warehouse, true
	case directorytypes.OrgTypeClient:
		return b.Client, true
	case directorytypes.OrgTypeBank:
		return b.Bank, true
	}
	return SignatureSlot{}, false
}

// FullySignedFor reports whether every slot in the required signer set is
// filled.
func (b DocumentBundle) FullySignedFor(required []directorytypes.OrgType) bool {
	if len(required) == 0 {
		return false
	}
	for _, signer := range required {
		slot, ok := b.Slot(signer)
		if !ok || !slot.Signed {
			return false
		}
	}
	return true
}
