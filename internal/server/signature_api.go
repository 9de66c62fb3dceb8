package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vaultline/vaultline/internal/routing"
	directoryservices "github.com/vaultline/vaultline/modules/directory/services"
	documentservices "github.com/vaultline/vaultline/modules/documents/services"
	signatureports "github.com/vaultline/vaultline/modules/signature/domain/ports"
	signaturetypes "github.com/vaultline/vaultline/modules/signature/domain/types"
	signatureservices "github.com/vaultline/vaultline/modules/signature/services"
	"github.com/vaultline/vaultline/pkg/httperr"
)

type initiateEnvelopeAPIRequest struct {
	AssetID     string   `json:"asset_id"`
	ActorOrgIDs []string `json:"actor_org_ids"`
}

type syncEnvelopeAPIRequest struct {
	EnvelopeID string `json:"envelope_id"`
}

func handleEnvelopesAPI(rc routing.RouteClass, coordinator signatureservices.Coordinator, envelopes signatureports.EnvelopeStore, bundles documentservices.BundleService, directory directoryservices.DirectoryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			envelopeID := strings.TrimSpace(r.URL.Query().Get("envelope_id"))
			if envelopeID == "" {
				open, err := envelopes.ListOpenEnvelopes(r.Context())
				if err != nil {
					writeServiceError(w, r, rc, err)
					return
				}
				views := make([]envelopeView, 0, len(open))
				for _, env := range open {
					views = append(views, envelopeToView(env))
				}
				writeJSON(w, http.StatusOK, map[string]any{"envelopes": views})
				return
			}
			env, err := envelopes.FindEnvelope(r.Context(), envelopeID)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"envelope": envelopeToView(env)})

		case http.MethodPost:
			var req initiateEnvelopeAPIRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
				return
			}
			docs, actors, err := envelopeInputs(r, req, bundles, directory)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			env, err := coordinator.Initiate(r.Context(), req.AssetID, docs, actors)
			if err != nil {
				writeServiceError(w, r, rc, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"envelope": envelopeToView(env)})
		}
	})
}

// envelopeInputs assembles the provider payload: every latest-version bundle
// of the asset plus the contact data of each participating organization.
func envelopeInputs(r *http.Request, req initiateEnvelopeAPIRequest, bundles documentservices.BundleService, directory directoryservices.DirectoryService) ([]signaturetypes.EnvelopeDocument, []signaturetypes.EnvelopeActor, error) {
	latest, err := bundles.LatestBundles(r.Context(), req.AssetID)
	if err != nil {
		return nil, nil, err
	}
	if len(latest) == 0 {
		return nil, nil, httperr.NewPreconditionFailed("asset has no document bundles")
	}
	docs := make([]signaturetypes.EnvelopeDocument, 0, len(latest))
	for _, b := range latest {
		docs = append(docs, signaturetypes.EnvelopeDocument{
			BundleID:    b.ID,
			DocType:     b.Type,
			ContentHash: b.ContentHash,
		})
	}

	if len(req.ActorOrgIDs) == 0 {
		return nil, nil, httperr.NewBadRequest("actor_org_ids is required")
	}
	actors := make([]signaturetypes.EnvelopeActor, 0, len(req.ActorOrgIDs))
	for _, orgID := range req.ActorOrgIDs {
		org, err := directory.Resolve(r.Context(), orgID)
		if err != nil {
			return nil, nil, err
		}
		if !org.ContactComplete() {
			return nil, nil, httperr.NewPreconditionFailed("organization " + org.ID + " has no signing contact")
		}
		actors = append(actors, signaturetypes.EnvelopeActor{
			OrgID: org.ID,
			Type:  org.Type,
			Email: org.ContactEmail,
			Name:  org.ContactName,
		})
	}
	return docs, actors, nil
}

func handleEnvelopeSyncAPI(rc routing.RouteClass, coordinator signatureservices.Coordinator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req syncEnvelopeAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		env, err := coordinator.SyncActivity(r.Context(), req.EnvelopeID)
		if err != nil {
			writeServiceError(w, r, rc, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"envelope": envelopeToView(env)})
	})
}
