package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vaultline/vaultline/internal/routing"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	documenttypes "github.com/vaultline/vaultline/modules/documents/domain/types"
	documentservices "github.com/vaultline/vaultline/modules/documents/services"
)

type createBundleAPIRequest struct {
	AssetID     string `json:"asset_id"`
	DocType     string `json:"doc_type"`
	ContentHash string `json:"content_hash"`
}

type recordSignatureAPIRequest struct {
	BundleID       string `json:"bundle_id"`
	SignerType     string `json:"signer_type"`
	SignerIdentity string `json:"signer_identity"`
}

type regenerateBundleAPIRequest struct {
	BundleID    string `json:"bundle_id"`
	ContentHash string `json:"content_hash"`
}

func handleBundlesAPI(rc routing.RouteClass, svc documentservices.BundleService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assetID := strings.TrimSpace(r.URL.Query().Get("asset_id"))
			if assetID == "" {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "missing_asset_id", "asset_id is required")
				return
			}
			bundles, err := svc.LatestBundles(r.Context(), assetID)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			complete, err := svc.AssetDocumentsComplete(r.Context(), assetID)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"asset_id":           assetID,
				"bundles":            bundlesToViews(bundles),
				"documents_complete": complete,
			})

		case http.MethodPost:
			var req createBundleAPIRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
				return
			}
			docType := documenttypes.DocumentType(strings.ToUpper(strings.TrimSpace(req.DocType)))
			bundle, err := svc.CreateBundle(r.Context(), req.AssetID, docType, req.ContentHash)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"bundle": bundleToView(bundle)})
		}
	})
}

func handleBundleSignAPI(rc routing.RouteClass, svc documentservices.BundleService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordSignatureAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		err := svc.RecordSignature(r.Context(), documentservices.RecordSignatureRequest{
			BundleID:       req.BundleID,
			SignerType:     directorytypes.OrgType(strings.ToUpper(strings.TrimSpace(req.SignerType))),
			SignerIdentity: req.SignerIdentity,
			SignedAt:       time.Now().UTC(),
		})
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"recorded": true})
	})
}

func handleBundleRegenerateAPI(rc routing.RouteClass, svc documentservices.BundleService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req regenerateBundleAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		bundle, err := svc.Regenerate(r.Context(), req.BundleID, req.ContentHash)
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bundle": bundleToView(bundle)})
	})
}
