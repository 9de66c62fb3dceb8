package authz

// Subjects are organization types, not user roles: the engine authorizes
// state-machine operations by the acting organization's capability.
const (
	SubjectOperator  = "org:operator"
	SubjectWarehouse = "org:warehouse"
	SubjectClient    = "org:client"
	SubjectBank      = "org:bank"
	SubjectAnonymous = "org:anonymous"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
	ActionAdmin = "admin"
)

const (
	ObjectOperations     = "operations.operations"
	ObjectDocuments      = "documents.bundles"
	ObjectEnvelopes      = "signature.envelopes"
	ObjectTokens         = "tokenization.tokens"
	ObjectEndorsements   = "endorsement.endorsements"
	ObjectPaymentLetters = "operations.payment-letters"
	ObjectLiquidation    = "operations.liquidation"
	ObjectDelivery       = "operations.delivery"
	ObjectDirectory      = "directory.organizations"
)
