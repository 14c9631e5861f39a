package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/systemshift/graphchat/internal/chat"
	"github.com/systemshift/graphchat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket chat server and HTTP API",
	Long: `Starts the HTTP server:

  GET  /health                  liveness and gateway breaker state
  GET  /metrics                 Prometheus metrics
  GET  /api/users/{id}/top      most frequent questions (?limit=N)
  GET  /api/users/{id}/history  all questions with counts and ratings
  POST /api/feedback            rate a question
  GET  /ws                      chat websocket

/api and /ws use basic auth when auth.users (or GRAPHCHAT_USERS) is set.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if len(cfg.Auth.Users) == 0 {
		logger.Warn("no auth users configured, every connection acts as " + server.DefaultUser)
	}

	srv := server.New(server.Deps{
		Store:   a.store,
		Chain:   a.answerer(),
		Chats:   chat.NewManager(a.store, a.chatOptions(cfg.Chat), a.metrics, logger),
		Metrics: a.metrics,
		Breaker: a.gateway,
		Logger:  logger,
		Realm:   cfg.Auth.Realm,
		Users:   cfg.Auth.Users,
	})

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting graphchat server", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server exited")
	return nil
}
