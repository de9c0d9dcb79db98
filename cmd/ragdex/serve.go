package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	chiTransport "github.com/kailas-cloud/ragdex/internal/transport/chi"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
)

func runServe(ctx context.Context, c *cli, args []string) error {
	fs, cfgPath := c.flags("serve")
	port := fs.Int("port", 0, "listen port (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, cfg, err := c.setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.HTTP.Port = *port
	}
	logger := c.logger

	be, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	var answerer chiTransport.Answerer
	if cfg.Chat.Enabled {
		answerer = answeruc.New(be.engine, buildChat(cfg, logger), answeruc.Options{
			SystemPrompt: cfg.Chat.SystemPrompt,
			Instructions: cfg.Chat.Instructions,
		})
	} else {
		logger.Info("Chat disabled, POST /answer returns 501")
	}

	var (
		cache     healthuc.DBPinger
		embedding healthuc.EmbeddingChecker
	)
	if be.store != nil {
		cache = be.store
	}
	if hc := be.embeddingHealth(); hc != nil {
		embedding = hc
	}
	healthSvc := healthuc.New(be.engine, cache, embedding)

	server := chiTransport.NewServer(be.engine, answerer, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("No API keys configured, authentication disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr), zap.Int("records", be.engine.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
	return nil
}
