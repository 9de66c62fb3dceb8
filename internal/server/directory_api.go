package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vaultline/vaultline/internal/routing"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	directoryservices "github.com/vaultline/vaultline/modules/directory/services"
)

type registerOrganizationAPIRequest struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	TaxID        string `json:"tax_id"`
	ContactEmail string `json:"contact_email"`
	ContactName  string `json:"contact_name"`
}

func handleOrganizationsAPI(rc routing.RouteClass, svc directoryservices.DirectoryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
			if orgID == "" {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "missing_org_id", "org_id is required")
				return
			}
			org, err := svc.Resolve(r.Context(), orgID)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"organization": organizationToView(org)})

		case http.MethodPost:
			var req registerOrganizationAPIRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
				return
			}
			org, err := svc.Register(r.Context(), directoryservices.RegisterOrganizationRequest{
				Type:         directorytypes.OrgType(strings.ToUpper(strings.TrimSpace(req.Type))),
				Name:         req.Name,
				TaxID:        req.TaxID,
				ContactEmail: req.ContactEmail,
				ContactName:  req.ContactName,
			})
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"organization": organizationToView(org)})
		}
	})
}

func handleWalletAPI(rc routing.RouteClass, svc directoryservices.DirectoryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
		if orgID == "" {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "missing_org_id", "org_id is required")
			return
		}
		wallet, err := svc.WalletFor(r.Context(), orgID)
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"org_id": orgID, "wallet_address": wallet})
	})
}
