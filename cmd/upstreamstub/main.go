package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// upstreamstub runs local stand-ins for the two external collaborators: the
// e-signature provider and the token ledger gateway. Development only; state
// lives in memory and resets on restart.

type stubActivity struct {
	ActorType   string     `json:"actor_type"`
	ExternalID  string     `json:"external_id"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type stubEnvelope struct {
	ID         string
	Activities []stubActivity
}

type stubEvent struct {
	Type       string    `json:"type"`
	FromWallet string    `json:"from_wallet"`
	ToWallet   string    `json:"to_wallet"`
	Amount     string    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

type stubIssuance struct {
	ID     string
	Holder string
	Burned bool
	Events []stubEvent
}

type store struct {
	mu        sync.Mutex
	envelopes map[string]*stubEnvelope
	issuances map[string]*stubIssuance
	seenKeys  map[string]string // idempotency key -> issuance id
}

func newStore() *store {
	return &store{
		envelopes: map[string]*stubEnvelope{},
		issuances: map[string]*stubIssuance{},
		seenKeys:  map[string]string{},
	}
}

func main() {
	esignAddr := getenvDefault("ESIGN_STUB_ADDR", "127.0.0.1:9101")
	ledgerAddr := getenvDefault("LEDGER_STUB_ADDR", "127.0.0.1:9102")

	s := newStore()

	esignMux := http.NewServeMux()
	esignMux.HandleFunc("/health/ready", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	esignMux.HandleFunc("/v1/envelopes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Actors []struct {
				ExternalID string `json:"external_id"`
				ActorType  string `json:"actor_type"`
			} `json:"actors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Actors) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		env := &stubEnvelope{ID: newID("env")}
		for _, a := range req.Actors {
			env.Activities = append(env.Activities, stubActivity{
				ActorType:  a.ActorType,
				ExternalID: a.ExternalID,
				Status:     "PENDING",
			})
		}
		s.mu.Lock()
		s.envelopes[env.ID] = env
		s.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{"envelope_id": env.ID})
	})
	esignMux.HandleFunc("/v1/envelopes/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/envelopes/")
		ref, action, _ := strings.Cut(rest, "/")

		s.mu.Lock()
		env, ok := s.envelopes[ref]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch {
		case action == "activities" && r.Method == http.MethodGet:
			s.mu.Lock()
			out := append([]stubActivity(nil), env.Activities...)
			s.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"activities": out})

		// POST /v1/envelopes/{ref}/complete marks every actor COMPLETED so a
		// local flow can progress without a real signing ceremony.
		case action == "complete" && r.Method == http.MethodPost:
			now := time.Now().UTC()
			s.mu.Lock()
			for i := range env.Activities {
				env.Activities[i].Status = "COMPLETED"
				env.Activities[i].CompletedAt = &now
			}
			s.mu.Unlock()
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ledgerMux := http.NewServeMux()
	ledgerMux.HandleFunc("/health/ready", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	ledgerMux.HandleFunc("/v1/issuances", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Commitment   string `json:"commitment"`
			IssuerWallet string `json:"issuer_wallet"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Commitment == "" || req.IssuerWallet == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		s.mu.Lock()
		if key != "" {
			if existing, ok := s.seenKeys[key]; ok {
				s.mu.Unlock()
				_ = json.NewEncoder(w).Encode(map[string]any{"issuance_id": existing})
				return
			}
		}
		iss := &stubIssuance{ID: newID("iss"), Holder: req.IssuerWallet}
		iss.Events = append(iss.Events, stubEvent{Type: "MINT", ToWallet: req.IssuerWallet, Amount: "1", OccurredAt: time.Now().UTC()})
		s.issuances[iss.ID] = iss
		if key != "" {
			s.seenKeys[key] = iss.ID
		}
		s.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{"issuance_id": iss.ID})
	})
	ledgerMux.HandleFunc("/v1/issuances/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/issuances/")
		id, action, _ := strings.Cut(rest, "/")

		s.mu.Lock()
		iss, ok := s.issuances[id]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch {
		case action == "events" && r.Method == http.MethodGet:
			s.mu.Lock()
			out := append([]stubEvent(nil), iss.Events...)
			s.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"events": out})

		case action == "transfers" && r.Method == http.MethodPost:
			var req struct {
				FromWallet string `json:"from_wallet"`
				ToWallet   string `json:"to_wallet"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			s.mu.Lock()
			switch {
			case iss.Burned:
				s.mu.Unlock()
				w.WriteHeader(http.StatusConflict)
			case iss.Holder == req.ToWallet:
				// replayed transfer
				s.mu.Unlock()
				w.WriteHeader(http.StatusOK)
			case iss.Holder != req.FromWallet:
				s.mu.Unlock()
				w.WriteHeader(http.StatusConflict)
			default:
				iss.Holder = req.ToWallet
				iss.Events = append(iss.Events, stubEvent{Type: "TRANSFER", FromWallet: req.FromWallet, ToWallet: req.ToWallet, Amount: "1", OccurredAt: time.Now().UTC()})
				s.mu.Unlock()
				w.WriteHeader(http.StatusOK)
			}

		case action == "burn" && r.Method == http.MethodPost:
			var req struct {
				Wallet string `json:"wallet"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			s.mu.Lock()
			switch {
			case iss.Burned:
				// replayed burn
				s.mu.Unlock()
				w.WriteHeader(http.StatusOK)
			case iss.Holder != req.Wallet:
				s.mu.Unlock()
				w.WriteHeader(http.StatusConflict)
			default:
				iss.Burned = true
				iss.Events = append(iss.Events, stubEvent{Type: "BURN", FromWallet: req.Wallet, Amount: "1", OccurredAt: time.Now().UTC()})
				s.mu.Unlock()
				w.WriteHeader(http.StatusOK)
			}

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	errCh := make(chan error, 2)
	go func() {
		log.Printf("esign stub listening on %s", esignAddr)
		errCh <- http.ListenAndServe(esignAddr, esignMux)
	}()
	go func() {
		log.Printf("ledger stub listening on %s", ledgerAddr)
		errCh <- http.ListenAndServe(ledgerAddr, ledgerMux)
	}()
	log.Fatal(<-errCh)
}

func newID(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return prefix + "_" + hex.EncodeToString(b)
}

func getenvDefault(k string, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
