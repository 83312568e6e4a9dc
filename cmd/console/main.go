package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vouchr.org/internal/assurance"
	"vouchr.org/internal/config"
	"vouchr.org/internal/gate"
	"vouchr.org/internal/guard"
	"vouchr.org/internal/httpapi"
	"vouchr.org/internal/identity"
	"vouchr.org/internal/obs"
	"vouchr.org/internal/roleedit"
	"vouchr.org/internal/store/pg"
	"vouchr.org/internal/userinfo"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}

	logger, err := obs.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)

	obs.Init()
	obs.InitBuildInfo(version, commit)

	table, err := loadTable(cfg.RoutesFile)
	if err != nil {
		return err
	}

	provider, err := identity.NewGoTrue(cfg.IdentityURL, cfg.IdentityAPIKey, cfg.JWTSecret)
	if err != nil {
		return err
	}
	resolver := assurance.NewResolver(provider, assurance.WithLogger(logger))
	g, err := gate.New(provider, resolver, table,
		gate.WithCookieNames(gate.CookieNames{Access: cfg.AccessCookie, Refresh: cfg.RefreshCookie}),
		gate.WithSecureCookies(cfg.SecureCookies),
		gate.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	permissions, err := userinfo.NewClient(cfg.UserInfoURL)
	if err != nil {
		return err
	}

	opts := []httpapi.Option{
		httpapi.WithGate(g),
		httpapi.WithGuard(guard.NewMiddleware(permissions, guard.WithFallback(cfg.GuardFallback), guard.WithLogger(logger))),
		httpapi.WithLimits(httpapi.Limits{MaxBodyBytes: cfg.MaxBodyBytes, RateBurst: cfg.RateBurst, RatePerSec: cfg.RatePerSec}),
		httpapi.WithLogger(logger),
	}
	if cfg.UpstreamURL != "" {
		upstream, err := url.Parse(cfg.UpstreamURL)
		if err != nil {
			return fmt.Errorf("upstream url: %w", err)
		}
		opts = append(opts, httpapi.WithUpstream(upstream))
	}

	var probe httpapi.ReadyProbe
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		roles, err := roleedit.NewService(store)
		if err != nil {
			return err
		}
		probe.DB = store
		opts = append(opts, httpapi.WithRoles(roles))
	} else {
		logger.Warn("no database configured; role editing disabled")
	}

	api := httpapi.New(probe, version, opts...)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting console", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

func loadTable(file string) (*gate.Table, error) {
	if file == "" {
		return gate.DefaultTable()
	}
	return gate.LoadTable(file)
}
