package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/chat"
	"github.com/Sivarajmuthukumar12/the-chat-server/internal/config"
	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
	"github.com/Sivarajmuthukumar12/the-chat-server/internal/server"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().
		Str("tcp_addr", cfg.Server.TCPAddr).
		Str("http_addr", cfg.Server.HTTPAddr).
		Bool("websocket", cfg.WebSocket.Enabled).
		Msg("starting chat server")

	dir := chat.NewDirectory(server.DirectoryOptions(cfg.Chat, logger))
	srv := server.New(cfg, dir, logger)

	ln, err := srv.ListenTCP()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to bind tcp listener")
	}
	httpServer := srv.HTTPServer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ServeTCP(gCtx, ln)
	})

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("http listener started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http server shutdown")
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("chat server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("chat server stopped")
}
