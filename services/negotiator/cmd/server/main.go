package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/accordsai/negotiation/pkg/authn"
	"github.com/accordsai/negotiation/pkg/config"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/ledger"
	"github.com/accordsai/negotiation/pkg/logging"
	"github.com/accordsai/negotiation/services/negotiator/api"
	"github.com/accordsai/negotiation/services/negotiator/internal/idempotency"
	"github.com/accordsai/negotiation/services/negotiator/internal/peer"
	"github.com/accordsai/negotiation/services/negotiator/internal/session"
	"github.com/accordsai/negotiation/services/negotiator/internal/store"
)

func main() {
	if err := newRootCmd(run).Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfgFile string) error {
	v, err := config.New(cfgFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, err := loadSigner(cfg.Node)
	if err != nil {
		return err
	}
	log = log.WithParty(signer.Party.Name)

	values, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer values.Close()

	lc := ledger.NewClient(cfg.Ledger.URL)
	reg, err := signer.Registration()
	if err != nil {
		return err
	}
	if err := lc.Register(ctx, reg); err != nil {
		return fmt.Errorf("register %s with ledger: %w", signer.Party, err)
	}
	dir, err := identity.NewCachingDirectory(lc, cfg.Session.DirectoryCacheSize)
	if err != nil {
		return err
	}

	node, err := session.NewNode(session.Config{
		Signer:    signer,
		Store:     values,
		Ledger:    lc,
		Directory: dir,
		Network:   peer.NewHTTP(cfg.PeerURLs()),
		Logger:    log,
		Timeout:   cfg.Session.CounterpartyTimeout,
	})
	if err != nil {
		return err
	}

	idem, err := idempotency.NewMemoryStore(cfg.Session.IdempotencyCacheSize)
	if err != nil {
		return err
	}
	operator := authn.NewOperator(cfg.Node.OperatorToken, log)
	if !operator.Enabled() {
		log.Warn("operator API is unauthenticated; set node.operator_token")
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	peer.Routes(r, node)
	r.Group(func(r chi.Router) {
		r.Use(operator.Middleware)
		api.Routes(r, node, idem, log)
	})

	srv := &http.Server{
		Addr:              cfg.Node.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info("negotiator listening", "addr", srv.Addr, "agent_id", signer.Party.Key, "store", cfg.Store.Driver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func loadSigner(cfg config.NodeConfig) (*identity.Signer, error) {
	seed, err := cfg.KeySeedBytes()
	if err != nil {
		return nil, fmt.Errorf("node.key_seed: %w", err)
	}
	if seed == nil {
		return identity.GenerateSigner(cfg.Name, nil)
	}
	return identity.NewSigner(cfg.Name, seed)
}
