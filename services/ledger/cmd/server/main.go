package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/accordsai/negotiation/pkg/contract"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/pkg/logging"
)

func main() {
	log, err := logging.NewLogger(os.Getenv("LOG_DIR"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer log.Close()

	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8080"
	}

	notary := ledger.NewNotary(contract.Verify)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           ledger.NewHandler(notary),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info("ledger listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("ledger server stopped", "error", err.Error())
		os.Exit(1)
	}
}
