package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/projecthub/internal/app"
	"github.com/geocoder89/projecthub/internal/config"
	httpx "github.com/geocoder89/projecthub/internal/http"
	"github.com/geocoder89/projecthub/internal/http/handlers"
	"github.com/geocoder89/projecthub/internal/observability"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env, cfg.LogFile)

	if cfg.OTelEnabled {
		shutdownTracer, err := observability.InitTracer(context.Background(), observability.TracingConfig{
			ServiceName: "projecthub-api",
			Env:         cfg.Env,
			Endpoint:    cfg.OTelEndpoint,
			SampleRatio: cfg.OTelSampleRatio,
		})
		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdownTracer(ctx)
			}()
		}
	}

	startCtx, cancelStart := config.WithTimeout(30 * time.Second)
	a, err := app.New(startCtx, cfg, log)
	if err != nil {
		cancelStart()
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	// the provider may still be booting; both steps only warn when it is
	if res, err := a.InitRoles(startCtx); err != nil {
		log.Error("realm role bootstrap failed", "err", err)
	} else if res.Degraded {
		log.Warn("realm roles not initialized, retry with POST /api/identity/init-roles", "reason", res.Reason)
	}
	if err := a.SeedAdmin(startCtx); err != nil {
		log.Error("admin seed failed", "err", err)
	}
	cancelStart()

	ready := map[string]handlers.Check{"cache": a.Cache.Ping}
	if a.Pool != nil {
		ready["db"] = func(ctx context.Context) error { return a.Pool.Ping(ctx) }
	}

	router := httpx.NewRouter(cfg, httpx.Deps{
		Log:       log,
		Prom:      a.Prom,
		Gatherer:  a.Registry,
		Verifier:  a.Verifier,
		UserStore: a.UserStore,
		Users:     a.Users,
		Projects:  a.Projects,
		Tasks:     a.Tasks,
		InitRoles: a.InitRoles,
		Ready:     ready,
		Info:      map[string]handlers.Check{"identity": func(context.Context) error { return circuitCheck(a.Directory.State()) }},
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "storage", cfg.StorageDriver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

// circuitCheck reports the breaker state without calling the provider.
func circuitCheck(state string) error {
	if state == "closed" {
		return nil
	}
	return fmt.Errorf("identity circuit %s", state)
}
