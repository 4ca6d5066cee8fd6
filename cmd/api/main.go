package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/besitobot/economy/internal/api"
	"github.com/besitobot/economy/internal/infra/logging"
	"github.com/besitobot/economy/internal/infra/pgutils"
	"github.com/besitobot/economy/internal/services/dispatch"
	"github.com/besitobot/economy/internal/services/gate"
	"github.com/besitobot/economy/internal/services/ledger"
	"github.com/besitobot/economy/internal/services/streak"
	"github.com/besitobot/economy/pkg/envconf"
	"github.com/besitobot/economy/pkg/shutdownqueue"
	"github.com/robfig/cron/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	dbConns, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.AddNamed("postgres", func(context.Context) error {
		return dbConns.Close()
	})

	// --- Core services ---
	ledgerSrv := ledger.New(dbConns)
	gateSrv := gate.New(dbConns, cfg.ReactionCooldown)
	streakSrv := streak.New(dbConns, cfg.GraceWindowDays)
	dispatchSrv := dispatch.New(dbConns, ledgerSrv, gateSrv, streakSrv, cfg.RewardActionCap)

	// --- Streak sweep ---
	// Advisory only; the claim path makes the authoritative transition, so
	// a missed or doubled run is harmless.
	sweeper := cron.New()

	_, err = sweeper.AddFunc(cfg.SweepSchedule, func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		_, serr := streakSrv.SweepBroken(sctx, time.Now())
		if serr != nil {
			slog.Error("streak sweep failed", "error", serr)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule streak sweep: %w", err)
	}

	sweeper.Start()

	shutdownqueue.AddNamed("streak sweeper", func(c context.Context) error {
		slog.Info("Stop streak sweeper")

		select {
		case <-sweeper.Stop().Done():
			return nil
		case <-c.Done():
			return fmt.Errorf("stop sweeper: %w", c.Err())
		}
	})

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, ledgerSrv, streakSrv, dispatchSrv)

	// Register HTTP server graceful shutdown
	shutdownqueue.AddNamed("http server", func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port)

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
