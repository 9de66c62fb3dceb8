package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vaultline/vaultline/internal/routing"
	operationtypes "github.com/vaultline/vaultline/modules/operation/domain/types"
	operationservices "github.com/vaultline/vaultline/modules/operation/services"
)

type assetIntakeAPIRequest struct {
	Serial        string `json:"serial"`
	Description   string `json:"description"`
	DeclaredValue string `json:"declared_value"`
	ClientOrgID   string `json:"client_org_id"`
}

type createOperationAPIRequest struct {
	Assets []assetIntakeAPIRequest `json:"assets"`
}

type uploadPaymentLetterAPIRequest struct {
	OperationID string `json:"operation_id"`
	ContentHash string `json:"content_hash"`
}

type operationActionAPIRequest struct {
	OperationID string `json:"operation_id"`
}

func handleOperationsAPI(rc routing.RouteClass, svc operationservices.OperationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if operationID := strings.TrimSpace(r.URL.Query().Get("operation_id")); operationID != "" {
				op, err := svc.Get(r.Context(), operationID)
				if err != nil {
					writeServiceError(w, r, rc, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"operation": operationToView(op)})
				return
			}
			ops, err := svc.List(r.Context())
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			views := make([]operationView, 0, len(ops))
			for _, op := range ops {
				views = append(views, operationToView(op))
			}
			writeJSON(w, http.StatusOK, map[string]any{"operations": views})

		case http.MethodPost:
			var req createOperationAPIRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
				return
			}
			intakes := make([]operationservices.AssetIntake, 0, len(req.Assets))
			for _, a := range req.Assets {
				value, err := decimal.NewFromString(strings.TrimSpace(a.DeclaredValue))
				if err != nil {
					routing.WriteError(w, r, rc, http.StatusBadRequest, "invalid_declared_value", "invalid declared_value")
					return
				}
				intakes = append(intakes, operationservices.AssetIntake{
					Serial:        a.Serial,
					Description:   a.Description,
					DeclaredValue: value,
					ClientOrgID:   a.ClientOrgID,
				})
			}
			op, err := svc.Create(r.Context(), operationservices.CreateOperationRequest{Assets: intakes})
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"operation": operationToView(op)})
		}
	})
}

func handlePaymentLettersAPI(rc routing.RouteClass, svc operationservices.OperationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			operationID := strings.TrimSpace(r.URL.Query().Get("operation_id"))
			if operationID == "" {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "missing_operation_id", "operation_id is required")
				return
			}
			letter, err := svc.PaymentLetter(r.Context(), operationID)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"payment_letter": paymentLetterToView(letter)})
			return
		}

		p, ok := currentPrincipal(r.Context())
		if !ok {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		var req uploadPaymentLetterAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		letter, err := svc.UploadPaymentLetter(r.Context(), req.OperationID, req.ContentHash, p.Actor())
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"payment_letter": paymentLetterToView(letter)})
	})
}

func handlePaymentLetterApproveAPI(rc routing.RouteClass, svc operationservices.OperationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := currentPrincipal(r.Context())
		if !ok {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		var req operationActionAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		letter, err := svc.ApprovePaymentLetter(r.Context(), req.OperationID, p.Actor())
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payment_letter": paymentLetterToView(letter)})
	})
}

// handleOperationActionAPI serves the liquidate and certify-delivery verbs.
// Both are actor-gated transitions returning the updated operation.
func handleOperationActionAPI(rc routing.RouteClass, svc operationservices.OperationService, action string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := currentPrincipal(r.Context())
		if !ok {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		var req operationActionAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
			return
		}

		var (
			op  operationtypes.Operation
			err error
		)
		switch action {
		case "liquidate":
			op, err = svc.Liquidate(r.Context(), req.OperationID, p.Actor())
		case "certify-delivery":
			op, err = svc.CertifyDelivery(r.Context(), req.OperationID, p.Actor())
		default:
			routing.WriteError(w, r, rc, http.StatusNotFound, "not_found", "not found")
			return
		}
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"operation": operationToView(op)})
	})
}
