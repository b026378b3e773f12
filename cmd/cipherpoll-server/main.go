package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cipherpoll/server/internal/cipherpoll/fhe/plain"
	"github.com/cipherpoll/server/internal/cipherpoll/metrics"
	"github.com/cipherpoll/server/internal/cipherpoll/oracle"
	"github.com/cipherpoll/server/internal/cipherpoll/service"
	"github.com/cipherpoll/server/internal/cipherpoll/store/sqlite"
	"github.com/cipherpoll/server/internal/config"
	"github.com/cipherpoll/server/internal/db"
	"github.com/cipherpoll/server/internal/httpapi"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.FromEnv()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Error("db open failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, conn, db.SeedDevOptions{
			Providers:       cfg.SeedProviders,
			CooldownSeconds: cfg.CooldownSeconds,
		}); err != nil {
			logger.Error("dev seed failed", "error", err)
			os.Exit(1)
		}
	}

	writer := db.NewWorker(conn)
	defer writer.Close()

	ledgerStore := sqlite.NewLedger(conn, writer)
	eventStore := sqlite.NewEventStore(conn, writer)

	m := metrics.New(prometheus.DefaultRegisterer)

	guard := service.NewAccessGuard(cfg.Administrator, ledgerStore, eventStore, logger)
	batches := service.NewBatchLedger(ledgerStore, guard, eventStore, logger)

	backend := plain.New([]byte(cfg.SchemeSecret))
	tally := service.NewEncryptedTally(ledgerStore, guard, backend, eventStore, m, logger)

	ledgerID := cfg.LedgerID
	if ledgerID == "" {
		ledgerID = "cipherpoll:" + cfg.DBPath
	}

	// The bridge and the simulator oracle reference each other, so the bridge
	// is built first with the verifier and the simulator's callback closes
	// over it.
	var bridge *service.DecryptionBridge
	var sim *oracle.Simulator

	switch cfg.OracleMode {
	case "sim":
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			logger.Error("oracle keygen failed", "error", err)
			os.Exit(1)
		}
		cb := func(ctx context.Context, requestID string, cleartext, proof []byte) error {
			return bridge.OnDecryptionResult(ctx, requestID, cleartext, proof)
		}
		sim = oracle.NewSimulator(backend, priv, cb, 100*time.Millisecond, logger)
		bridge = service.NewDecryptionBridge(ledgerStore, guard, sim, oracle.NewEd25519Verifier(pub), ledgerID, eventStore, m, logger)
		defer sim.Close()
	default:
		pub, err := base64.StdEncoding.DecodeString(cfg.OraclePublicKey)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			logger.Error("external oracle mode needs a valid base64 ed25519 public key in CIPHERPOLL_ORACLE_PUBKEY")
			os.Exit(1)
		}
		// No in-process decryptor: phase one is unavailable until an external
		// oracle client is wired in, but callbacks still verify and finalize.
		bridge = service.NewDecryptionBridge(ledgerStore, guard, nil, oracle.NewEd25519Verifier(pub), ledgerID, eventStore, m, logger)
	}

	pruner := service.NewEventPruner(eventStore, service.PrunerConfig{
		RetentionDays: cfg.EventRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:  logger,
		Addr:    cfg.HTTPAddr,
		Guard:   guard,
		Batches: batches,
		Tally:   tally,
		Bridge:  bridge,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTPAddr, "env", cfg.Env, "oracle", cfg.OracleMode)
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
