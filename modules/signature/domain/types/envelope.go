package types

import (
	"time"

	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
)

type EnvelopeStatus string

const (
	EnvelopeOpen      EnvelopeStatus = "OPEN"
	EnvelopeCompleted EnvelopeStatus = "COMPLETED"
	// EnvelopeBlocked means a required actor rejected; the envelope needs
	// manual re-initiation, never an automatic retry.
	EnvelopeBlocked EnvelopeStatus = "BLOCKED"
)

type ActivityStatus string

const (
	ActivityPending   ActivityStatus = "PENDING"
	ActivityActive    ActivityStatus = "ACTIVE"
	ActivityCompleted ActivityStatus = "COMPLETED"
	ActivityRejected  ActivityStatus = "REJECTED"
)

// Envelope is one external e-signature session covering an asset's document
// set.
type Envelope struct {
	ID           string
	AssetID      string
	ExternalRef  string
	Status       EnvelopeStatus
	Documents    []EnvelopeDocument
	LastSyncedAt *time.Time
	CreatedAt    time.Time
}

type EnvelopeDocument struct {
	BundleID    string
	DocType     documenttypes.DocumentType
	ContentHash string
}

// EnvelopeActor is the contact payload handed to the e-signature provider.
type EnvelopeActor struct {
	OrgID string
	Type  directorytypes.OrgType
	Email string
	Name  string
}

// ActorActivity is the provider's view of one signer's progress.
type ActorActivity struct {
	ActorType   directorytypes.OrgType
	ActorOrgID  string
	Status      ActivityStatus
	CompletedAt *time.Time
}
