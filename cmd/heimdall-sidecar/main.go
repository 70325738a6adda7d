// Package main initializes and runs the Heimdall sidecar.
//
// It acts as the composition root for an embeddable feature-flag client:
// wiring up configuration, the Repository-backed Client, the admin
// introspection API, and the observability server, then handling the
// process lifecycle.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/heimdall-sdk/heimdall"
	"github.com/heimdall-sdk/heimdall/internal/adminapi"
	"github.com/heimdall-sdk/heimdall/internal/config"
	"github.com/heimdall-sdk/heimdall/internal/logger"
	"github.com/heimdall-sdk/heimdall/internal/observability"
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		log.Printf("fatal error: %v", err)
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	appLog := logger.New(&cfg.App)
	cfg.LogConfig(appLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// 2. Client Construction
	// -------------------------------------------------------------------------
	client, err := heimdall.New(ctx, cfg)
	if err != nil {
		return err
	}

	// -------------------------------------------------------------------------
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------
	adminAPI := adminapi.NewAPIWithConfig(client, apiKeyHashFromEnv(), apiKeyHashFromEnv() == "")

	obsServer := observability.NewServer(appLog, &cfg.Observability, client.Checkers()...)
	obsServer.Start()

	adminServer := &http.Server{
		Addr:    ":8090",
		Handler: adminAPI.Router,
	}

	errChan := make(chan error, 1)
	go func() {
		appLog.Info("starting admin API", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// -------------------------------------------------------------------------
	// 4. Graceful Shutdown
	// -------------------------------------------------------------------------
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		appLog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("admin API shutdown error", "error", err)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("observability server shutdown error", "error", err)
	}
	if err := client.Shutdown(shutdownCtx); err != nil {
		appLog.Error("client shutdown error", "error", err)
	}

	appLog.Info("service exited successfully")
	return nil
}

// apiKeyHashFromEnv reads the pre-hashed admin API key from the
// environment. An empty value disables authentication, which is only
// acceptable when the admin API is bound to a loopback/trusted interface.
func apiKeyHashFromEnv() string {
	return os.Getenv("HEIMDALL_ADMIN_API_KEY_HASH")
}
