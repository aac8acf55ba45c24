// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/go-core-stack/mcp-token-proxy/pkg/config"
	"github.com/go-core-stack/mcp-token-proxy/pkg/proxy"
	"github.com/go-core-stack/mcp-token-proxy/pkg/server"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	listenAddr := pflag.String("listen-addr", "", "address to listen on (overrides MCP_LISTEN_ADDR)")
	logLevel := pflag.String("log-level", "", "log level (overrides MCP_LOG_LEVEL)")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = log.Level(level)

	proxyHandler, err := proxy.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct proxy")
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.NewRouter(cfg.RoutePrefix, proxyHandler),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	go func() {
		upstream := ""
		if cfg.Upstream != nil {
			upstream = cfg.Upstream.String()
		}
		log.Info().
			Str("listen_addr", cfg.ListenAddr).
			Str("upstream", upstream).
			Str("route_prefix", cfg.RoutePrefix).
			Bool("auth_required", cfg.AuthRequired).
			Msg("starting MCP token proxy")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("proxy server exited unexpectedly")
		}
	}()

	waitForShutdown(context.Background(), srv, cfg.GracefulShutdownTimeout)
}

func waitForShutdown(ctx context.Context, srv *http.Server, timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	log.Info().Msg("shutting down MCP token proxy")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	log.Info().Msg("proxy stopped")
}
