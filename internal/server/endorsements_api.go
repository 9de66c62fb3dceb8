package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vaultline/vaultline/internal/routing"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	endorsementtypes "github.com/vaultline/vaultline/modules/endorsement/domain/types"
	endorsementservices "github.com/vaultline/vaultline/modules/endorsement/services"
)

type createEndorsementAPIRequest struct {
	TokenID       string `json:"token_id"`
	ClientOrgID   string `json:"client_org_id"`
	BankOrgID     string `json:"bank_org_id"`
	Principal     string `json:"principal"`
	Rate          string `json:"rate"`
	RepaymentDate string `json:"repayment_date"`
}

type endorsementActionAPIRequest struct {
	EndorsementID string `json:"endorsement_id"`
	Signer        string `json:"signer,omitempty"`
}

func handleEndorsementsAPI(rc routing.RouteClass, svc endorsementservices.EndorsementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if endorsementID := strings.TrimSpace(r.URL.Query().Get("endorsement_id")); endorsementID != "" {
				end, err := svc.Get(r.Context(), endorsementID)
				if err != nil {
					writeServiceError(w, r, rc, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"endorsement": endorsementToView(end)})
				return
			}
			assetID := strings.TrimSpace(r.URL.Query().Get("asset_id"))
			if assetID == "" {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "missing_asset_id", "endorsement_id or asset_id is required")
				return
			}
			ends, err := svc.ListByAsset(r.Context(), assetID)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			views := make([]endorsementView, 0, len(ends))
			for _, e := range ends {
				views = append(views, endorsementToView(e))
			}
			writeJSON(w, http.StatusOK, map[string]any{"asset_id": assetID, "endorsements": views})

		case http.MethodPost:
			var req createEndorsementAPIRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
				return
			}
			principal, err := decimal.NewFromString(strings.TrimSpace(req.Principal))
			if err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "invalid_principal", "invalid principal")
				return
			}
			rate, err := decimal.NewFromString(strings.TrimSpace(req.Rate))
			if err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "invalid_rate", "invalid rate")
				return
			}
			repayment, err := time.Parse("2006-01-02", strings.TrimSpace(req.RepaymentDate))
			if err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "invalid_repayment_date", "invalid repayment_date")
				return
			}
			end, err := svc.Create(r.Context(), endorsementservices.CreateEndorsementRequest{
				TokenID:       req.TokenID,
				ClientOrgID:   req.ClientOrgID,
				BankOrgID:     req.BankOrgID,
				Principal:     principal,
				Rate:          rate,
				RepaymentDate: repayment,
			})
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"endorsement": endorsementToView(end)})
		}
	})
}

// handleEndorsementActionAPI serves the sign/execute/repay/cancel verbs,
// which all take an endorsement id and return the updated endorsement.
func handleEndorsementActionAPI(rc routing.RouteClass, svc endorsementservices.EndorsementService, action string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req endorsementActionAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
			return
		}

		var (
			end endorsementtypes.Endorsement
			err error
		)
		switch action {
		case "sign":
			signer := directorytypes.OrgType(strings.ToUpper(strings.TrimSpace(req.Signer)))
			end, err = svc.Sign(r.Context(), req.EndorsementID, signer)
		case "execute":
			end, err = svc.Execute(r.Context(), req.EndorsementID)
		case "repay":
			end, err = svc.Repay(r.Context(), req.EndorsementID)
		case "cancel":
			end, err = svc.Cancel(r.Context(), req.EndorsementID)
		default:
			routing.WriteError(w, r, rc, http.StatusNotFound, "not_found", "not found")
			return
		}
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"endorsement": endorsementToView(end)})
	})
}
