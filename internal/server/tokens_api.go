package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vaultline/vaultline/internal/routing"
	tokenizationservices "github.com/vaultline/vaultline/modules/tokenization/services"
)

type tokenizeAPIRequest struct {
	AssetID     string `json:"asset_id"`
	ClientOrgID string `json:"client_org_id"`
	Amount      string `json:"amount"`
}

type burnTokenAPIRequest struct {
	TokenID string `json:"token_id"`
}

func handleTokensAPI(rc routing.RouteClass, pipeline tokenizationservices.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if tokenID := strings.TrimSpace(r.URL.Query().Get("token_id")); tokenID != "" {
				token, err := pipeline.FindToken(r.Context(), tokenID)
				if err != nil {
					writeServiceError(w, r, rc, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"token": tokenToView(token)})
				return
			}
			assetID := strings.TrimSpace(r.URL.Query().Get("asset_id"))
			if assetID == "" {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "missing_asset_id", "token_id or asset_id is required")
				return
			}
			token, err := pipeline.FindActiveTokenByAsset(r.Context(), assetID)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"token": tokenToView(token)})

		case http.MethodPost:
			var req tokenizeAPIRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
				return
			}
			amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
			if err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "invalid_amount", "invalid amount")
				return
			}
			token, err := pipeline.Tokenize(r.Context(), tokenizationservices.TokenizeRequest{
				AssetID:     req.AssetID,
				ClientOrgID: req.ClientOrgID,
				Amount:      amount,
			})
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"token": tokenToView(token)})
		}
	})
}

func handleTokenPreviewAPI(rc routing.RouteClass, pipeline tokenizationservices.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assetID := strings.TrimSpace(r.URL.Query().Get("asset_id"))
		if assetID == "" {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "missing_asset_id", "asset_id is required")
			return
		}
		preview, err := pipeline.Preview(r.Context(), assetID)
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"asset_id":           assetID,
			"commitment":         preview.Commitment,
			"documents_complete": preview.DocumentsComplete,
			"document_count":     preview.DocumentCount,
		})
	})
}

func handleTokenBurnAPI(rc routing.RouteClass, pipeline tokenizationservices.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req burnTokenAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		if err := pipeline.Burn(r.Context(), req.TokenID); err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"burned": true})
	})
}

func handleTokenHistoryAPI(rc routing.RouteClass, pipeline tokenizationservices.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issuanceID := strings.TrimSpace(r.URL.Query().Get("issuance_id"))
		if issuanceID == "" {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "missing_issuance_id", "issuance_id is required")
			return
		}
		events, err := pipeline.History(r.Context(), issuanceID)
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"issuance_id": issuanceID,
			"events":      ledgerEventsToViews(events),
		})
	})
}
