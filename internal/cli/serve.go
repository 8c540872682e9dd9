package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/daybook/internal/auth"
	"github.com/lazypower/daybook/internal/config"
	"github.com/lazypower/daybook/internal/docstore"
	"github.com/lazypower/daybook/internal/engine"
	"github.com/lazypower/daybook/internal/idempotency"
	"github.com/lazypower/daybook/internal/logging"
	"github.com/lazypower/daybook/internal/metrics"
	"github.com/lazypower/daybook/internal/ratelimit"
	"github.com/lazypower/daybook/internal/server"
	"github.com/lazypower/daybook/internal/store"
	"github.com/lazypower/daybook/internal/store/mongostore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, where, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var ds docstore.Store = db
	engineOpts := []engine.Option{
		engine.WithColorAssigner(engine.NewColorAssigner(
			rand.NewPCG(rand.Uint64(), rand.Uint64()), cfg.Engine.ColorMaxAttempts)),
	}
	if cfg.MetricsEnabled {
		ds = metrics.InstrumentStore(db)
		engineOpts = append(engineOpts, engine.WithObserver(metrics.Observer{}))
	}
	eng := engine.New(ds, log, engineOpts...)

	verifier, err := buildVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, 10*time.Minute)
	defer limiter.Close()

	opts := server.Options{
		Verifier: verifier,
		Limiter:  limiter,
		Metrics:  cfg.MetricsEnabled,
	}
	if cfg.Redis.URL != "" {
		idem, err := idempotency.NewStore(cfg.Redis.URL, cfg.Redis.IdempotencyTTL)
		if err != nil {
			return fmt.Errorf("open idempotency store: %w", err)
		}
		defer idem.Close()
		opts.Idempotency = idem
	}

	srv := server.New(db, eng, log, VersionString(), opts)
	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("driver", cfg.Database.Driver).
			Str("db", where).
			Bool("idempotency", opts.Idempotency != nil).
			Msg("daybook serving")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openStore opens the configured backend and returns it with a description
// of where the data lives, for the startup log.
func openStore(ctx context.Context, cfg config.Config) (docstore.Store, string, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := store.OpenPostgres(ctx, cfg.Database.PostgresDSN)
		return db, "postgres", err
	case "mongo":
		db, err := mongostore.Open(ctx, cfg.Database.MongoURI, cfg.Database.MongoDatabase)
		return db, "mongo/" + cfg.Database.MongoDatabase, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	return db, dbPath, err
}

// buildVerifier accepts daybook-issued tokens when a secret is configured and
// provider ID tokens when OIDC is configured.
func buildVerifier(ctx context.Context, cfg config.Config) (auth.Verifier, error) {
	var chain auth.Chain
	if cfg.Auth.JWTSecret != "" {
		chain = append(chain, auth.NewHMAC(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))
	}
	if cfg.Auth.OIDCIssuerURL != "" {
		v, err := auth.NewOIDC(ctx, cfg.Auth.OIDCIssuerURL, cfg.Auth.OIDCClientID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}
