package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/vaultline/vaultline/internal/routing"
	directoryports "github.com/vaultline/vaultline/modules/directory/domain/ports"
	directorypersistence "github.com/vaultline/vaultline/modules/directory/infrastructure/persistence"
	directoryservices "github.com/vaultline/vaultline/modules/directory/services"
	documentports "github.com/vaultline/vaultline/modules/documents/domain/ports"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
	documentpersistence "github.com/vaultline/vaultline/modules/documents/infrastructure/persistence"
	documentservices "github.com/vaultline/vaultline/modules/documents/services"
	endorsementports "github.com/vaultline/vaultline/modules/endorsement/domain/ports"
	endorsementpersistence "github.com/vaultline/vaultline/modules/endorsement/infrastructure/persistence"
	endorsementservices "github.com/vaultline/vaultline/modules/endorsement/services"
	operationports "github.com/vaultline/vaultline/modules/operation/domain/ports"
	operationpersistence "github.com/vaultline/vaultline/modules/operation/infrastructure/persistence"
	operationservices "github.com/vaultline/vaultline/modules/operation/services"
	signatureports "github.com/vaultline/vaultline/modules/signature/domain/ports"
	"github.com/vaultline/vaultline/modules/signature/infrastructure/esign"
	signaturepersistence "github.com/vaultline/vaultline/modules/signature/infrastructure/persistence"
	signatureservices "github.com/vaultline/vaultline/modules/signature/services"
	tokenizationports "github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	"github.com/vaultline/vaultline/modules/tokenization/infrastructure/ledger"
	tokenizationpersistence "github.com/vaultline/vaultline/modules/tokenization/infrastructure/persistence"
	tokenizationservices "github.com/vaultline/vaultline/modules/tokenization/services"
)

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

type HandlerOptions struct {
	DirectoryStore   directoryports.DirectoryStore
	BundleStore      documentports.BundleStore
	EnvelopeStore    signatureports.EnvelopeStore
	TokenStore       tokenizationports.TokenStore
	EndorsementStore endorsementports.EndorsementStore
	OperationStore   operationports.OperationStore

	EsignProvider signatureports.EsignProvider
	Ledger        tokenizationports.Ledger

	TokenVerifier tokenVerifier
	Authorizer    authorizer

	// SignaturePollInterval > 0 starts the envelope poller alongside the
	// handler.
	SignaturePollInterval time.Duration
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultConfigPath(filepath.Join("config", "routing", "allowlist.yaml"))
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}

	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	directoryStore := opts.DirectoryStore
	bundleStore := opts.BundleStore
	envelopeStore := opts.EnvelopeStore
	tokenStore := opts.TokenStore
	endorsementStore := opts.EndorsementStore
	operationStore := opts.OperationStore

	if directoryStore == nil || bundleStore == nil || envelopeStore == nil ||
		tokenStore == nil || endorsementStore == nil || operationStore == nil {
		pool, err := pgxpool.New(context.Background(), dbDSNFromEnv())
		if err != nil {
			return nil, err
		}
		if directoryStore == nil {
			directoryStore = directorypersistence.NewDirectoryPGStore(pool)
		}
		if bundleStore == nil {
			bundleStore = documentpersistence.NewBundlePGStore(pool)
		}
		if envelopeStore == nil {
			envelopeStore = signaturepersistence.NewEnvelopePGStore(pool)
		}
		if tokenStore == nil {
			tokenStore = tokenizationpersistence.NewTokenPGStore(pool)
		}
		if endorsementStore == nil {
			endorsementStore = endorsementpersistence.NewEndorsementPGStore(pool)
		}
		if operationStore == nil {
			operationStore = operationpersistence.NewOperationPGStore(pool)
		}
	}

	esignProvider := opts.EsignProvider
	if esignProvider == nil {
		esignProvider = esign.New(getenvDefault("ESIGN_BASE_URL", "http://127.0.0.1:9101"), os.Getenv("ESIGN_BEARER_TOKEN"))
	}
	tokenLedger := opts.Ledger
	if tokenLedger == nil {
		tokenLedger = ledger.New(getenvDefault("LEDGER_BASE_URL", "http://127.0.0.1:9102"), os.Getenv("LEDGER_BEARER_TOKEN"))
	}

	verifier := opts.TokenVerifier
	if verifier == nil {
		v, err := newJWTVerifierFromEnv()
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	auth := opts.Authorizer
	if auth == nil {
		a, err := loadAuthorizer()
		if err != nil {
			return nil, err
		}
		auth = a
	}

	directoryService := directoryservices.NewDirectoryService(directoryStore)
	policy := documentservices.NewSignerPolicy(os.Getenv("SIGNER_POLICY_EXPR"))
	bundleService := documentservices.NewBundleService(bundleStore, policy, fullySignedLogger())
	coordinator := signatureservices.NewCoordinator(envelopeStore, esignProvider, bundleService)
	pipeline := tokenizationservices.NewPipeline(tokenStore, tokenLedger, bundleService, directoryService)
	endorsementService := endorsementservices.NewEndorsementService(endorsementStore, pipeline, directoryService)
	operationService := operationservices.NewOperationService(operationStore, pipeline, bundleService, directoryService, endorsementStore)

	if opts.SignaturePollInterval > 0 {
		go coordinator.RunPoller(context.Background(), opts.SignaturePollInterval)
	}

	router := routing.NewRouter(classifier)
	handle := func(method, path string, h http.Handler) {
		router.Handle(classifier.Classify(path), method, path, h)
	}

	handle(http.MethodGet, "/health", http.HandlerFunc(handleHealth))
	handle(http.MethodGet, "/healthz", http.HandlerFunc(handleHealth))

	rcFor := classifier.Classify

	handle(http.MethodGet, "/directory/api/organizations", handleOrganizationsAPI(rcFor("/directory/api/organizations"), directoryService))
	handle(http.MethodPost, "/directory/api/organizations", handleOrganizationsAPI(rcFor("/directory/api/organizations"), directoryService))
	handle(http.MethodGet, "/directory/api/wallet", handleWalletAPI(rcFor("/directory/api/wallet"), directoryService))

	handle(http.MethodGet, "/documents/api/bundles", handleBundlesAPI(rcFor("/documents/api/bundles"), bundleService))
	handle(http.MethodPost, "/documents/api/bundles", handleBundlesAPI(rcFor("/documents/api/bundles"), bundleService))
	handle(http.MethodPost, "/documents/api/bundles:sign", handleBundleSignAPI(rcFor("/documents/api/bundles:sign"), bundleService))
	handle(http.MethodPost, "/documents/api/bundles:regenerate", handleBundleRegenerateAPI(rcFor("/documents/api/bundles:regenerate"), bundleService))

	handle(http.MethodGet, "/signature/api/envelopes", handleEnvelopesAPI(rcFor("/signature/api/envelopes"), coordinator, envelopeStore, bundleService, directoryService))
	handle(http.MethodPost, "/signature/api/envelopes", handleEnvelopesAPI(rcFor("/signature/api/envelopes"), coordinator, envelopeStore, bundleService, directoryService))
	handle(http.MethodPost, "/signature/api/envelopes:sync", handleEnvelopeSyncAPI(rcFor("/signature/api/envelopes:sync"), coordinator))

	handle(http.MethodGet, "/tokenization/api/tokens", handleTokensAPI(rcFor("/tokenization/api/tokens"), pipeline))
	handle(http.MethodPost, "/tokenization/api/tokens", handleTokensAPI(rcFor("/tokenization/api/tokens"), pipeline))
	handle(http.MethodGet, "/tokenization/api/tokens:preview", handleTokenPreviewAPI(rcFor("/tokenization/api/tokens:preview"), pipeline))
	handle(http.MethodPost, "/tokenization/api/tokens:burn", handleTokenBurnAPI(rcFor("/tokenization/api/tokens:burn"), pipeline))
	handle(http.MethodGet, "/tokenization/api/tokens/history", handleTokenHistoryAPI(rcFor("/tokenization/api/tokens/history"), pipeline))

	handle(http.MethodGet, "/endorsement/api/endorsements", handleEndorsementsAPI(rcFor("/endorsement/api/endorsements"), endorsementService))
	handle(http.MethodPost, "/endorsement/api/endorsements", handleEndorsementsAPI(rcFor("/endorsement/api/endorsements"), endorsementService))
	for _, action := range []string{"sign", "execute", "repay", "cancel"} {
		path := "/endorsement/api/endorsements:" + action
		handle(http.MethodPost, path, handleEndorsementActionAPI(rcFor(path), endorsementService, action))
	}

	handle(http.MethodGet, "/operation/api/operations", handleOperationsAPI(rcFor("/operation/api/operations"), operationService))
	handle(http.MethodPost, "/operation/api/operations", handleOperationsAPI(rcFor("/operation/api/operations"), operationService))
	handle(http.MethodGet, "/operation/api/payment-letters", handlePaymentLettersAPI(rcFor("/operation/api/payment-letters"), operationService))
	handle(http.MethodPost, "/operation/api/payment-letters", handlePaymentLettersAPI(rcFor("/operation/api/payment-letters"), operationService))
	handle(http.MethodPost, "/operation/api/payment-letters:approve", handlePaymentLetterApproveAPI(rcFor("/operation/api/payment-letters:approve"), operationService))
	handle(http.MethodPost, "/operation/api/operations:liquidate", handleOperationActionAPI(rcFor("/operation/api/operations:liquidate"), operationService, "liquidate"))
	handle(http.MethodPost, "/operation/api/operations:certify-delivery", handleOperationActionAPI(rcFor("/operation/api/operations:certify-delivery"), operationService, "certify-delivery"))

	return withIdentity(classifier, verifier, withAuthz(classifier, auth, router)), nil
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(err)
	}
	return h
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// fullySignedLogger is the default completion hook: the stage derivation
// reads signature state directly, so completion only needs to be visible in
// the logs.
func fullySignedLogger() documentservices.FullySignedHook {
	return func(_ context.Context, bundle documenttypes.DocumentBundle) {
		log.WithFields(log.Fields{
			"module":  "server",
			"bundle":  bundle.ID,
			"asset":   bundle.AssetID,
			"type":    string(bundle.Type),
			"version": bundle.Version,
		}).Info("document bundle fully signed")
	}
}
