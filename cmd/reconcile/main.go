package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	tokenizationports "github.com/vaultline/vaultline/modules/tokenization/domain/ports"
	"github.com/vaultline/vaultline/modules/tokenization/infrastructure/ledger"
)

// reconcile compares every non-burned token's local custody state against the
// ledger's event history and reports drift. It never corrects: a mismatch
// means either a lost local write or an unexpected ledger mutation, and both
// need a human.
func main() {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var (
		dbURL      string
		ledgerURL  string
		bearer     string
		timeoutSec int
	)
	fs.StringVar(&dbURL, "db-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	fs.StringVar(&ledgerURL, "ledger-url", os.Getenv("LEDGER_BASE_URL"), "ledger base url")
	fs.StringVar(&bearer, "ledger-token", os.Getenv("LEDGER_BEARER_TOKEN"), "ledger bearer token")
	fs.IntVar(&timeoutSec, "timeout", 60, "overall timeout in seconds")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if dbURL == "" {
		fatalf("missing --db-url")
	}
	if ledgerURL == "" {
		fatalf("missing --ledger-url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	client := ledger.New(ledgerURL, bearer)

	rows, err := conn.Query(ctx, `SELECT id, issuance_id, holder_wallet, status FROM tokens ORDER BY created_at`)
	if err != nil {
		fatal(err)
	}

	type tokenRow struct {
		id         string
		issuanceID string
		holder     string
		status     string
	}
	var tokens []tokenRow
	for rows.Next() {
		var t tokenRow
		if err := rows.Scan(&t.id, &t.issuanceID, &t.holder, &t.status); err != nil {
			rows.Close()
			fatal(err)
		}
		tokens = append(tokens, t)
	}
	rows.Close()
	if rows.Err() != nil {
		fatal(rows.Err())
	}

	mismatches := 0
	for _, t := range tokens {
		events, err := client.History(ctx, t.issuanceID)
		if err != nil {
			fatal(err)
		}
		holder, burned := replayEvents(events)

		switch {
		case burned && t.status != "BURNED":
			mismatches++
			fmt.Printf("LEDGER_INCONSISTENCY token=%s issuance=%s local_status=%s ledger=burned\n", t.id, t.issuanceID, t.status)
		case !burned && t.status == "BURNED":
			mismatches++
			fmt.Printf("LEDGER_INCONSISTENCY token=%s issuance=%s local_status=BURNED ledger=active\n", t.id, t.issuanceID)
		case !burned && holder != "" && holder != t.holder:
			mismatches++
			fmt.Printf("LEDGER_INCONSISTENCY token=%s issuance=%s local_holder=%s ledger_holder=%s\n", t.id, t.issuanceID, t.holder, holder)
		}
	}

	fmt.Printf("checked %d tokens, %d mismatches\n", len(tokens), mismatches)
	if mismatches > 0 {
		os.Exit(1)
	}
}

// replayEvents folds the event stream into the ledger's view of the current
// holder and burn state.
func replayEvents(events []tokenizationports.LedgerEvent) (holder string, burned bool) {
	for _, e := range events {
		switch e.Type {
		case "MINT":
			holder = e.ToWallet
		case "TRANSFER":
			holder = e.ToWallet
		case "BURN":
			burned = true
		}
	}
	return holder, burned
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
