package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vaultline/vaultline/internal/routing"
	operationports "github.com/vaultline/vaultline/modules/operation/domain/ports"
	"github.com/vaultline/vaultline/pkg/httperr"
)

func decodeErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (code string) {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Code
}

func TestWriteServiceError(t *testing.T) {
	for _, tc := range []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad request", httperr.NewBadRequest("nope"), http.StatusBadRequest, "bad_request"},
		{"unauthorized maps to forbidden", httperr.NewUnauthorized("nope"), http.StatusForbidden, "forbidden"},
		{"conflict", httperr.NewConflict("nope"), http.StatusConflict, "conflict"},
		{"precondition", httperr.NewPreconditionFailed("nope"), http.StatusPreconditionFailed, "precondition_failed"},
		{"unavailable", httperr.NewUnavailable("ledger down", nil), http.StatusServiceUnavailable, "upstream_unavailable"},
		{"ledger inconsistency", httperr.NewLedgerInconsistency("drift"), http.StatusInternalServerError, "LEDGER_INCONSISTENCY"},
		{"not found sentinel", operationports.ErrOperationNotFound, http.StatusNotFound, "not_found"},
		{"stable business code", errors.New("ALREADY_TOKENIZED"), http.StatusUnprocessableEntity, "ALREADY_TOKENIZED"},
		{"opaque failure", errors.New("pg: connection reset"), http.StatusInternalServerError, "internal_error"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/operation/api/operations", nil)
			writeServiceError(rec, req, routing.RouteClassInternalAPI, tc.err)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if code := decodeErrorEnvelope(t, rec); code != tc.wantCode {
				t.Fatalf("code = %q, want %q", code, tc.wantCode)
			}
		})
	}
}

func TestIsStableBusinessCode(t *testing.T) {
	for code, want := range map[string]bool{
		"ALREADY_TOKENIZED": true,
		"TOKEN_BURNED":      true,
		"NOT_FULLY_SIGNED":  true,
		"bad_request":       false,
		"pg: timeout":       false,
		"":                  false,
		"4XX":               false,
	} {
		if got := isStableBusinessCode(code); got != want {
			t.Fatalf("isStableBusinessCode(%q) = %v, want %v", code, got, want)
		}
	}
}
