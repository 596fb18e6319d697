// Command duomem runs the memory service.
//
// The primary transport is the line protocol on stdin/stdout; every log line
// goes to stderr so the output channel carries nothing but protocol frames.
// An HTTP surface can be enabled alongside it via configuration.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/core"
	"github.com/duomem/duomem-go/pkg/httpapi"
	"github.com/duomem/duomem-go/pkg/protocol"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := core.LoadConfigFromEnv()
	if err != nil {
		logger.Fatal("load configuration", zap.Error(err))
	}

	engine, err := core.New(cfg, core.WithLogger(logger))
	if err != nil {
		logger.Fatal("initialize engine", zap.Error(err))
	}
	defer engine.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var httpSrv *httpapi.Server
	if cfg.HTTP.Enabled {
		httpSrv = httpapi.NewServer(engine, cfg.HTTP.Addr, logger)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil {
				logger.Error("http server", zap.Error(err))
			}
		}()
	}

	framer := protocol.NewFramer(os.Stdin, os.Stdout)
	server := protocol.NewServer(engine, framer, logger)

	err = server.Run(ctx)

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
			logger.Error("http shutdown", zap.Error(serr))
		}
	}

	switch {
	case err == nil:
		logger.Info("input channel exhausted, shutting down")
	case errors.Is(err, context.Canceled):
		logger.Info("signal received, shutting down")
	default:
		logger.Fatal("protocol server terminated", zap.Error(err))
	}
}
