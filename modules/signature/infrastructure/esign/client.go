package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	"github.com/vaultline/vaultline/modules/signature/domain/ports"
	"github.com/vaultline/vaultline/modules/signature/domain/types"
	"github.com/vaultline/vaultline/pkg/httperr"
)

const maxAttempts = 3

// Client talks to the external e-signature provider's REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Bearer     string

	// Backoff between retry attempts; swappable in tests.
	Sleep func(time.Duration)
}

func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Bearer:     bearer,
		Sleep:      time.Sleep,
	}
}

var _ ports.EsignProvider = (*Client)(nil)

type envelopeDocumentPayload struct {
	DocumentID  string `json:"document_id"`
	DocType     string `json:"doc_type"`
	ContentHash string `json:"content_hash"`
}

type envelopeActorPayload struct {
	ExternalID string `json:"external_id"`
	ActorType  string `json:"actor_type"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

type createEnvelopeRequest struct {
	Documents []envelopeDocumentPayload `json:"documents"`
	Actors    []envelopeActorPayload    `json:"actors"`
}

type createEnvelopeResponse struct {
	EnvelopeID string `json:"envelope_id"`
}

type activityPayload struct {
	ActorType   string     `json:"actor_type"`
	ExternalID  string     `json:"external_id"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type activitiesResponse struct {
	Activities []activityPayload `json:"activities"`
}

func (c *Client) CreateEnvelope(ctx context.Context, documents []types.EnvelopeDocument, actors []types.EnvelopeActor) (string, error) {
	payload := createEnvelopeRequest{}
	for _, d := range documents {
		payload.Documents = append(payload.Documents, envelopeDocumentPayload{
			DocumentID:  d.BundleID,
			DocType:     string(d.DocType),
			ContentHash: d.ContentHash,
		})
	}
	for _, a := range actors {
		payload.Actors = append(payload.Actors, envelopeActorPayload{
			ExternalID: a.OrgID,
			ActorType:  string(a.Type),
			Email:      a.Email,
			Name:       a.Name,
		})
	}

	var resp createEnvelopeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/envelopes", payload, &resp); err != nil {
		return "", err
	}
	if resp.EnvelopeID == "" {
		return "", fmt.Errorf("esign: provider returned empty envelope id")
	}
	return resp.EnvelopeID, nil
}

func (c *Client) GetActivities(ctx context.Context, externalRef string) ([]types.ActorActivity, error) {
	var resp activitiesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/envelopes/"+externalRef+"/activities", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]types.ActorActivity, 0, len(resp.Activities))
	for _, a := range resp.Activities {
		out = append(out, types.ActorActivity{
			ActorType:   directoryOrgType(a.ActorType),
			ActorOrgID:  a.ExternalID,
			Status:      types.ActivityStatus(strings.ToUpper(a.Status)),
			CompletedAt: a.CompletedAt,
		})
	}
	return out, nil
}

// doJSON issues the request with bounded retry on transport errors and 5xx
// responses. 4xx responses are terminal.
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.Bearer != "" {
			req.Header.Set("Authorization", "Bearer "+c.Bearer)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("esign: provider returned %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("esign: provider rejected request with %d", resp.StatusCode)
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		return decodeErr
	}
	return httperr.NewUnavailable("esign provider unavailable", lastErr)
}

func directoryOrgType(raw string) directorytypes.OrgType {
	return directorytypes.OrgType(strings.ToUpper(strings.TrimSpace(raw)))
}
