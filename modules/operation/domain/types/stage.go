package types

type Stage string

const (
	StageCreated         Stage = "CREATED"
	StageDocumentsReady  Stage = "DOCUMENTS_READY"
	StageDocumentsSigned Stage = "DOCUMENTS_SIGNED"
	StageTokenizing      Stage = "TOKENIZING"
	StageTokenized       Stage = "TOKENIZED"
	StageReleased        Stage = "RELEASED"
)

// AssetProgress is the per-asset input to stage derivation: the stored
// status plus what the document and token modules report for the asset.
type AssetProgress struct {
	Status AssetStatus
	// DocumentsPresent: every required document type has at least one
	// bundle version.
	DocumentsPresent bool
	// DocumentsSigned: every required bundle is fully signed.
	DocumentsSigned bool
	HasToken        bool
}

// DeriveStage computes the operation's stage from its assets. Pure; the
// stage is never stored. The checks run most-advanced first, so an
// operation is never reported less advanced than its most-progressed asset
// allows, and uniform stages (RELEASED, TOKENIZED) require every asset to
// qualify.
func DeriveStage(assets []AssetProgress) Stage {
	if len(assets) == 0 {
		return StageCreated
	}

	allTerminal := true
	allTokens := true
	anyToken := false
	allSigned := true
	allPresent := true
	for _, a := range assets {
		if !a.Status.Terminal() {
			allTerminal = false
		}
		if a.HasToken {
			anyToken = true
		} else {
			allTokens = false
		}
		if !a.DocumentsSigned {
			allSigned = false
		}
		if !a.DocumentsPresent {
			allPresent = false
		}
	}

	switch {
	case allTerminal:
		return StageReleased
	case allTokens:
		return StageTokenized
	case anyToken:
		return StageTokenizing
	case allSigned:
		return StageDocumentsSigned
	case allPresent:
		return StageDocumentsReady
	}
	return StageCreated
}
