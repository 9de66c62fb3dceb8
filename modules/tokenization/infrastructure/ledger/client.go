package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	"github.com/vaultline/vaultline/pkg/httperr"
)

const maxAttempts = 3

// Client talks to the distributed-ledger gateway's REST API. Mutations
// carry the caller's idempotency key as a header so gateway-side dedup
// absorbs retries.
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

var _ ports.Ledger = (*Client)(nil)

type mintRequest struct {
	Commitment   string `json:"commitment"`
	IssuerWallet string `json:"issuer_wallet"`
}

type mintResponse struct {
	IssuanceID string `json:"issuance_id"`
}

type transferRequest struct {
	FromWallet string `json:"from_wallet"`
	ToWallet   string `json:"to_wallet"`
}

type burnRequest struct {
	Wallet string `json:"wallet"`
}

type eventPayload struct {
	Type       string    `json:"type"`
	FromWallet string    `json:"from_wallet"`
	ToWallet   string    `json:"to_wallet"`
	Amount     string    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

type historyResponse struct {
	Events []eventPayload `json:"events"`
}

func (c *Client) Mint(ctx context.Context, commitment string, issuerWallet string, idempotencyKey string) (string, error) {
	var resp mintResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/issuances", idempotencyKey,
		mintRequest{Commitment: commitment, IssuerWallet: issuerWallet}, &resp)
	if err != nil {
		return "", err
	}
	if resp.IssuanceID == "" {
		return "", fmt.Errorf("ledger: gateway returned empty issuance id")
	}
	return resp.IssuanceID, nil
}

func (c *Client) Transfer(ctx context.Context, issuanceID string, fromWallet string, toWallet string, idempotencyKey string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/issuances/"+issuanceID+"/transfers", idempotencyKey,
		transferRequest{FromWallet: fromWallet, ToWallet: toWallet}, nil)
}

func (c *Client) Burn(ctx context.Context, issuanceID string, wallet string, idempotencyKey string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/issuances/"+issuanceID+"/burn", idempotencyKey,
		burnRequest{Wallet: wallet}, nil)
}

func (c *Client) History(ctx context.Context, issuanceID string) ([]ports.LedgerEvent, error) {
	var resp historyResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/issuances/"+issuanceID+"/events", "", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]ports.LedgerEvent, 0, len(resp.Events))
	for _, e := range resp.Events {
		out = append(out, ports.LedgerEvent{
			Type:       e.Type,
			FromWallet: e.FromWallet,
			ToWallet:   e.ToWallet,
			Amount:     e.Amount,
			OccurredAt: e.OccurredAt,
		})
	}
	return out, nil
}

// doJSON issues the request with bounded retry on transport errors and 5xx
// responses. 409 means the mutation contradicts on-ledger state and maps to
// ErrLedgerStateMismatch; other 4xx responses are terminal.
func (c *Client) doJSON(ctx context.Context, method, path, idempotencyKey string, in any, out any) error {
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
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}
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
			lastErr = fmt.Errorf("ledger: gateway returned %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode == http.StatusConflict {
			resp.Body.Close()
			return fmt.Errorf("ledger: %w", ports.ErrLedgerStateMismatch)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("ledger: gateway rejected request with %d", resp.StatusCode)
		}
		if out == nil {
			resp.Body.Close()
			return nil
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		return decodeErr
	}
	return httperr.NewUnavailable("ledger gateway unavailable", lastErr)
}
