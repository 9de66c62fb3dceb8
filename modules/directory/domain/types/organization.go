package types

import "time"

type OrgType string

const (
	OrgTypeOperator  OrgType = "OPERATOR"
	OrgTypeWarehouse OrgType = "WAREHOUSE"
	OrgTypeClient    OrgType = "CLIENT"
	OrgTypeBank      OrgType = "BANK"
)

func (t OrgType) Valid() bool {
	switch t {
	case OrgTypeOperator, OrgTypeWarehouse, OrgTypeClient, OrgTypeBank:
		return true
	}
	return false
}

// Organization is a party to the custody lifecycle. Type is immutable after
// creation; the custodial wallet is assigned once, lazily, on first use.
type Organization struct {
	ID            string
	Type          OrgType
	Name          string
	TaxID         string
	ContactEmail  string
	ContactName   string
	Active        bool
	WalletAddress string
	CreatedAt     time.Time
}

// ContactComplete reports whether the organization carries the contact data
// an e-signature envelope needs.
func (o Organization) ContactComplete() bool {
	return o.ContactEmail != "" && o.ContactName != ""
}
