package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vaultline/vaultline/internal/routing"
	directoryports "github.com/vaultline/vaultline/modules/directory/domain/ports"
	documentports "github.com/vaultline/vaultline/modules/documents/domain/ports"
	endorsementports "github.com/vaultline/vaultline/modules/endorsement/domain/ports"
	operationports "github.com/vaultline/vaultline/modules/operation/domain/ports"
	signatureports "github.com/vaultline/vaultline/modules/signature/domain/ports"
	tokenizationports "github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	"github.com/vaultline/vaultline/pkg/httperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var notFoundSentinels = []error{
	directoryports.ErrOrganizationNotFound,
	documentports.ErrBundleNotFound,
	signatureports.ErrEnvelopeNotFound,
	tokenizationports.ErrTokenNotFound,
	endorsementports.ErrEndorsementNotFound,
	operationports.ErrOperationNotFound,
	operationports.ErrAssetNotFound,
	operationports.ErrPaymentLetterNotFound,
}

// writeServiceError maps service-layer failures onto the uniform error
// envelope. Stable UPPER_SNAKE business codes surface as 422 so clients can
// branch on them.
func writeServiceError(w http.ResponseWriter, r *http.Request, rc routing.RouteClass, err error) {
	switch {
	case httperr.IsBadRequest(err):
		routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_request", err.Error())
	case httperr.IsUnauthorized(err):
		routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", err.Error())
	case httperr.IsConflict(err):
		routing.WriteError(w, r, rc, http.StatusConflict, "conflict", err.Error())
	case httperr.IsPreconditionFailed(err):
		routing.WriteError(w, r, rc, http.StatusPreconditionFailed, "precondition_failed", err.Error())
	case httperr.IsUnavailable(err):
		routing.WriteError(w, r, rc, http.StatusServiceUnavailable, "upstream_unavailable", err.Error())
	case httperr.IsLedgerInconsistency(err):
		routing.WriteError(w, r, rc, http.StatusInternalServerError, "LEDGER_INCONSISTENCY", err.Error())
	case isNotFound(err):
		routing.WriteError(w, r, rc, http.StatusNotFound, "not_found", err.Error())
	case isStableBusinessCode(err.Error()):
		routing.WriteError(w, r, rc, http.StatusUnprocessableEntity, err.Error(), err.Error())
	default:
		routing.WriteError(w, r, rc, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func isNotFound(err error) bool {
	for _, sentinel := range notFoundSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isStableBusinessCode(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		ch := code[i]
		if ch >= 'A' && ch <= 'Z' {
			continue
		}
		if ch >= '0' && ch <= '9' {
			continue
		}
		if ch == '_' {
			continue
		}
		return false
	}
	return code[0] >= 'A' && code[0] <= 'Z'
}
