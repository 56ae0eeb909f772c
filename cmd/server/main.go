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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Collab/internal/adapters/http"
	"github.com/dkeye/Collab/internal/app"
	"github.com/dkeye/Collab/internal/app/orch"
	"github.com/dkeye/Collab/internal/config"
	"github.com/dkeye/Collab/internal/core"
	"github.com/dkeye/Collab/internal/notify"
	"github.com/dkeye/Collab/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to open store")
	}
	defer st.Close()

	policy, err := app.PolicyByName(cfg.BackpressurePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("bad backpressure policy")
	}
	var projects core.ProjectLookup
	if cfg.ValidateJoin {
		projects = st
	}
	o := orch.New(app.NewRegistry(), policy, projects)

	notifier := notify.New(notify.LogMailer{})

	r := router.SetupRouter(ctx, cfg, &router.Handlers{
		Repo:                 st,
		Notifier:             notifier,
		Orch:                 o,
		AllowAnonymousWrites: cfg.AllowAnonymousWrites,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Collab server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err := srv.Shutdown(shutdownCtx)

		// Hijacked sockets are not tracked by http.Server.
		for _, room := range o.Registry.Rooms() {
			n := o.EvictRoom(room.ProjectID)
			log.Debug().Str("project_id", room.ProjectID.String()).Int("closed", n).Msg("room evicted")
		}
		notifier.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}
	log.Info().Msg("Server exited gracefully")
}
