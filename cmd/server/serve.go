package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Tutor/internal/adapters/http"
	"github.com/dkeye/Tutor/internal/app"
	"github.com/dkeye/Tutor/internal/app/call"
	"github.com/dkeye/Tutor/internal/app/chat"
	"github.com/dkeye/Tutor/internal/app/oracle"
	"github.com/dkeye/Tutor/internal/auth"
	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/store"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	policy := app.SimplePolicy{}
	rooms := core.NewRegistry()
	sessions := app.NewSessions()
	callRelay := call.NewRelay(rooms, oracle.New(st, cfg.ActiveStatuses()), call.Options{
		Capacity:        cfg.Call.Capacity,
		StrictSignaling: cfg.Call.StrictSignaling,
		JoinLimit:       cfg.Call.JoinLimit,
		JoinInterval:    cfg.Call.JoinInterval,
		Policy:          policy,
	})
	chatService := chat.NewService(rooms, st, chat.Options{Policy: policy})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Sessions: sessions,
		Rooms:    rooms,
		Call:     callRelay,
		Chat:     chatService,
		Store:    st,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("Tutor server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		n := sessions.CancelAll()
		log.Info().Int("sessions", n).Msg("live sessions cancelled")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	if lim := callRelay.Limiter(); lim != nil {
		g.Go(func() error {
			t := time.NewTicker(cfg.Call.JoinInterval)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					lim.Forget()
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
