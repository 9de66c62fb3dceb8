package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vaultline/vaultline/internal/routing"
	"github.com/vaultline/vaultline/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := defaultConfigPath("config/access/model.conf")
		if err != nil {
			return nil, errors.New("server: authz model not found")
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := defaultConfigPath("config/access/policy.csv")
		if err != nil {
			return nil, errors.New("server: authz policy not found")
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}

	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func defaultConfigPath(rel string) (string, error) {
	path := rel
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: config file not found: " + rel)
}

type authorizer interface {
	Authorize(subject string, object string, action string) (allowed bool, enforced bool, err error)
}

// withIdentity verifies the caller's bearer token and attaches the
// principal to the request context. Ops endpoints stay open.
func withIdentity(classifier *routing.Classifier, verifier tokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		rc := routing.RouteClassInternalAPI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		p, err := verifier.Verify(r)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		rc := routing.RouteClassInternalAPI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		subject := authz.SubjectAnonymous
		if p, ok := currentPrincipal(r.Context()); ok {
			subject = authz.SubjectFromOrgType(string(p.OrgType))
		}

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		allowed, enforced, err := a.Authorize(subject, object, action)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	switch path {
	case "/directory/api/organizations":
		if method == http.MethodGet {
			return authz.ObjectDirectory, authz.ActionRead, true
		}
		if method == http.MethodPost {
			return authz.ObjectDirectory, authz.ActionAdmin, true
		}
		return "", "", false
	case "/directory/api/wallet":
		if method == http.MethodGet {
			return authz.ObjectDirectory, authz.ActionRead, true
		}
		return "", "", false
	case "/documents/api/bundles":
		if method == http.MethodGet {
			return authz.ObjectDocuments, authz.ActionRead, true
		}
		if method == http.MethodPost {
			return authz.ObjectDocuments, authz.ActionAdmin, true
		}
		return "", "", false
	case "/documents/api/bundles:sign":
		if method == http.MethodPost {
			return authz.ObjectDocuments, authz.ActionWrite, true
		}
		return "", "", false
	case "/documents/api/bundles:regenerate":
		if method == http.MethodPost {
			return authz.ObjectDocuments, authz.ActionAdmin, true
		}
		return "", "", false
	case "/signature/api/envelopes":
		if method == http.MethodGet {
			return authz.ObjectEnvelopes, authz.ActionRead, true
		}
		if method == http.MethodPost {
			return authz.ObjectEnvelopes, authz.ActionAdmin, true
		}
		return "", "", false
	case "/signature/api/envelopes:sync":
		if method == http.MethodPost {
			return authz.ObjectEnvelopes, authz.ActionWrite, true
		}
		return "", "", false
	case "/tokenization/api/tokens":
		if method == http.MethodGet {
			return authz.ObjectTokens, authz.ActionRead, true
		}
		if method == http.MethodPost {
			return authz.ObjectTokens, authz.ActionAdmin, true
		}
		return "", "", false
	case "/tokenization/api/tokens:preview", "/tokenization/api/tokens/history":
		if method == http.MethodGet {
			return authz.ObjectTokens, authz.ActionRead, true
		}
		return "", "", false
	case "/tokenization/api/tokens:burn":
		if method == http.MethodPost {
			return authz.ObjectTokens, authz.ActionAdmin, true
		}
		return "", "", false
	case "/endorsement/api/endorsements":
		if method == http.MethodGet {
			return authz.ObjectEndorsements, authz.ActionRead, true
		}
		if method == http.MethodPost {
			return authz.ObjectEndorsements, authz.ActionAdmin, true
		}
		return "", "", false
	case "/endorsement/api/endorsements:sign", "/endorsement/api/endorsements:execute",
		"/endorsement/api/endorsements:repay", "/endorsement/api/endorsements:cancel":
		if method == http.MethodPost {
			return authz.ObjectEndorsements, authz.ActionWrite, true
		}
		return "", "", false
	case "/operation/api/operations":
		if method == http.MethodGet {
			return authz.ObjectOperations, authz.ActionRead, true
		}
		if method == http.MethodPost {
			return authz.ObjectOperations, authz.ActionAdmin, true
		}
		return "", "", false
	case "/operation/api/payment-letters":
		if method == http.MethodGet {
			return authz.ObjectPaymentLetters, authz.ActionRead, true
		}
		if method == http.MethodPost {
			return authz.ObjectPaymentLetters, authz.ActionWrite, true
		}
		return "", "", false
	case "/operation/api/payment-letters:approve":
		if method == http.MethodPost {
			return authz.ObjectPaymentLetters, authz.ActionAdmin, true
		}
		return "", "", false
	case "/operation/api/operations:liquidate":
		if method == http.MethodPost {
			return authz.ObjectLiquidation, authz.ActionAdmin, true
		}
		return "", "", false
	case "/operation/api/operations:certify-delivery":
		if method == http.MethodPost {
			return authz.ObjectDelivery, authz.ActionAdmin, true
		}
		return "", "", false
	default:
		return "", "", false
	}
}
