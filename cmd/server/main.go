// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tomtom215/campaignguard/internal/api"
	"github.com/tomtom215/campaignguard/internal/auth"
	"github.com/tomtom215/campaignguard/internal/authz"
	"github.com/tomtom215/campaignguard/internal/config"
	"github.com/tomtom215/campaignguard/internal/logging"
	"github.com/tomtom215/campaignguard/internal/supervisor"
	"github.com/tomtom215/campaignguard/internal/supervisor/services"
	ws "github.com/tomtom215/campaignguard/internal/websocket"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a signed JWT for this subject ID and exit")
	tokenRoles := flag.String("roles", auth.RoleViewer, "comma-separated roles for -issue-token")
	tokenTTL := flag.Duration("ttl", 24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken, *tokenRoles, *tokenTTL); err != nil {
			logging.Fatal().Err(err).Msg("Failed to issue token")
		}
		return
	}

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("CampaignGuard stopped with error")
	}
}

// printToken writes a bearer token for an operator console or the CRM
// backend to stdout.
func printToken(cfg *config.Config, subject, roles string, ttl time.Duration) error {
	manager, err := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
	if err != nil {
		return err
	}
	var roleList []string
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}
	token, err := manager.GenerateToken(auth.Subject{ID: subject, Username: subject, Roles: roleList}, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

//nolint:gocyclo // sequential wiring of every component
func run(cfg *config.Config) error {
	logConfiguration(cfg)

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	components, err := buildComponents(cfg, stores)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	hub := ws.NewHub()
	components.engine.SetBroadcaster(hub)

	authMode, err := auth.ParseAuthMode(cfg.Security.AuthMode)
	if err != nil {
		return err
	}
	var jwtManager *auth.JWTManager
	if authMode == auth.AuthModeJWT {
		jwtManager, err = auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
		if err != nil {
			return fmt.Errorf("initialize JWT manager: %w", err)
		}
		logging.Info().Str("issuer", cfg.Security.JWTIssuer).Msg("JWT authentication enabled")
	} else {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  Every caller acts as operator and service.")
		logging.Warn().Msg("  Use only for local development.")
		logging.Warn().Msg("============================================================")
	}
	authn, err := auth.NewMiddleware(authMode, jwtManager)
	if err != nil {
		return err
	}

	enforcerConfig := authz.DefaultEnforcerConfig()
	enforcerConfig.PolicyPath = cfg.Security.CasbinPolicyPath
	enforcer, err := authz.NewEnforcer(enforcerConfig)
	if err != nil {
		return fmt.Errorf("initialize authorization: %w", err)
	}
	defer enforcer.Close()

	readiness := stores.readiness()
	handler, err := api.NewHandler(api.Dependencies{
		Guard:          components.guard,
		Sessions:       components.sessions,
		Consent:        components.consent,
		Alerts:         components.engine,
		Audit:          components.durable,
		Hub:            hub,
		AllowedOrigins: cfg.Security.CORSOrigins,
		Readiness:      readiness,
	})
	if err != nil {
		return err
	}

	chiConfig := api.DefaultChiMiddlewareConfig()
	chiConfig.CORSAllowedOrigins = cfg.Security.CORSOrigins
	chiConfig.RateLimitRequests = cfg.Security.RateLimitReqs
	chiConfig.RateLimitWindow = cfg.Security.RateLimitWindow
	chiConfig.RateLimitDisabled = cfg.Security.RateLimitDisabled
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Per-IP rate limiting is DISABLED (RATE_LIMIT_DISABLED=true)")
	}

	router, err := api.NewRouter(handler, authn, authz.NewMiddleware(enforcer), chiConfig)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * cfg.Server.WriteTimeout,
	}
	httpService := services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout)
	readiness["http"] = httpService.Ready

	// Data layer first so events recorded during startup are delivered.
	tree.AddDataService(components.writer)
	if gc := stores.garbageCollector(); gc != nil {
		tree.AddDataService(gc)
	}

	tree.AddMonitorService(components.sessions)
	tree.AddMonitorService(components.sweeper)
	tree.AddMonitorService(services.NewDetectionService(components.engine))
	tree.AddMonitorService(services.NewAlertFeedService(hub))

	tree.AddAPIService(httpService)

	logging.Info().Str("addr", server.Addr).Msg("CampaignGuard listening")

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	logging.Info().Msg("Shutdown signal received, stopping services")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("supervisor: %w", err)
		}
	case <-time.After(2 * cfg.Server.ShutdownTimeout):
		report, _ := tree.UnstoppedServiceReport()
		for _, svc := range report {
			logging.Error().Str("service", svc.Name).Msg("Service did not stop in time")
		}
		return errors.New("shutdown timed out")
	}

	// Monitors are stopped; release any watchers still parked.
	components.sessions.StopAll()
	logging.Info().Msg("CampaignGuard stopped")
	return nil
}

// logConfiguration logs the effective settings without secrets.
func logConfiguration(cfg *config.Config) {
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("addr", cfg.Server.Addr()).
		Str("storage_backend", cfg.Storage.Backend).
		Str("throttle_store", cfg.Throttle.Store).
		Int("lockout_threshold", cfg.Throttle.LockoutThreshold).
		Dur("base_delay", cfg.Throttle.BaseDelay()).
		Dur("max_delay", cfg.Throttle.MaxDelay()).
		Dur("session_timeout", cfg.Session.IdleTimeout()).
		Dur("activity_poll", cfg.Session.PollInterval()).
		Dur("anomaly_window", cfg.Detection.Window()).
		Str("user_agent_mode", cfg.Detection.UserAgentMode).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("jwt_secret_set", cfg.Security.JWTSecret != "").
		Bool("custom_policy", cfg.Security.CasbinPolicyPath != "").
		Strs("cors_origins", cfg.Security.CORSOrigins).
		Msg("Configuration loaded")
}
