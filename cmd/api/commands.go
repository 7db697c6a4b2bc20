package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/admin-ops/internal/api/http"
	"github.com/spec-kit/admin-ops/internal/api/http/handlers"
	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/config"
	"github.com/spec-kit/admin-ops/internal/observability"
	"github.com/spec-kit/admin-ops/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin-ops",
		Short:         "Admin dashboard backend: session lifecycle and ticket escalations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the escalation scheduler and the session manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	escalationsCmd := &cobra.Command{
		Use:   "escalations",
		Short: "Escalation maintenance commands",
	}
	escalationsCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run one escalation pass and print its result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEscalationCheck(cmd.Context(), cmd)
		},
	})

	var rulesFile string
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Escalation rule commands",
	}
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load escalation rules from a YAML file into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesSeed(cmd.Context(), cmd, rulesFile)
		},
	}
	seedCmd.Flags().StringVarP(&rulesFile, "file", "f", "", "YAML rules file (defaults to ESCALATION_RULES_FILE)")
	rulesCmd.AddCommand(seedCmd)

	root.AddCommand(serveCmd, escalationsCmd, rulesCmd)
	return root
}

func bootstrap() (*config.Config, *zap.Logger) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	return cfg, logger
}

func runServe(parent context.Context) error {
	cfg, logger := bootstrap()
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	worker.StartNotificationWorker(a.notifications, logger)

	escalations := a.escalationService(ctx)
	authService := a.authService()
	sessions := a.sessionManager(ctx)

	var scheduler *worker.EscalationScheduler
	if cfg.Escalation.Enabled {
		scheduler = worker.NewEscalationScheduler(escalations, cfg.Escalation.ScanSpec, cfg.Escalation.PassTimeout, logger)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start escalation scheduler: %w", err)
		}
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, a.metrics, cfg.App.RequestTimeout())

	routes := httptransport.RouteConfig{
		Auth:           handlers.NewAuthHandler(authService),
		Escalations:    handlers.NewEscalationsHandler(escalations),
		AuthMiddleware: auth.NewAuthMiddleware(a.tokens, a.users),
		Metrics:        a.metrics,
	}
	deps := map[string]handlers.Pinger{"postgres": a.pg, "redis": a.redis}
	if sessions != nil {
		routes.Session = handlers.NewSessionHandler(sessions)
		routes.Health = handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps, sessions)
	} else {
		routes.Health = handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps, nil)
	}
	httptransport.RegisterRoutes(app, routes)

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if sessions != nil {
		sessions.Cleanup()
	}
	_ = app.ShutdownWithContext(shutdownCtx)
	return nil
}

func runEscalationCheck(ctx context.Context, cmd *cobra.Command) error {
	cfg, logger := bootstrap()
	defer logger.Sync() //nolint:errcheck

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	worker.StartNotificationWorker(a.notifications, logger)
	result := a.escalationService(ctx).CheckEscalations(ctx)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.Aborted {
		return fmt.Errorf("escalation pass aborted")
	}
	return nil
}

func runRulesSeed(ctx context.Context, cmd *cobra.Command, path string) error {
	cfg, logger := bootstrap()
	defer logger.Sync() //nolint:errcheck

	if path == "" {
		path = cfg.Escalation.RulesFile
	}
	rules, err := config.LoadEscalationRules(path)
	if err != nil {
		return err
	}

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	for i := range rules {
		if err := a.rules.Upsert(ctx, &rules[i]); err != nil {
			return fmt.Errorf("upsert rule %q: %w", rules[i].Name, err)
		}
		logger.Info("rule seeded", zap.String("rule_id", rules[i].ID), zap.String("name", rules[i].Name))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rules from %s\n", len(rules), path)
	return nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
