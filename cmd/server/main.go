package main

import (
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vaultline/vaultline/internal/server"
)

func main() {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	pollInterval := 30 * time.Second
	if raw := os.Getenv("SIGNATURE_POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			log.WithFields(log.Fields{"value": raw, "err": err}).Fatal("invalid SIGNATURE_POLL_INTERVAL")
		}
		pollInterval = d
	}

	h, err := server.NewHandlerWithOptions(server.HandlerOptions{
		SignaturePollInterval: pollInterval,
	})
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Fatal("handler init failed")
	}

	log.WithFields(log.Fields{"addr": addr}).Info("listening")
	if err := http.ListenAndServe(addr, h); err != nil {
		log.WithFields(log.Fields{"err": err}).Fatal("server exited")
	}
}
