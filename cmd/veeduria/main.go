package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/veeduria/veeduria-api/cmd/veeduria/cli"
	"github.com/veeduria/veeduria-api/internal/app"
	"github.com/veeduria/veeduria-api/internal/audit"
	audithttp "github.com/veeduria/veeduria-api/internal/audit/http"
	"github.com/veeduria/veeduria-api/internal/auth"
	"github.com/veeduria/veeduria-api/internal/observability"
	"github.com/veeduria/veeduria-api/internal/platform/cache"
	"github.com/veeduria/veeduria-api/internal/platform/db"
	"github.com/veeduria/veeduria-api/internal/rbac"
	"github.com/veeduria/veeduria-api/internal/roles"
	"github.com/veeduria/veeduria-api/internal/users"
	"github.com/veeduria/veeduria-api/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] != "serve" {
		if err := runCommand(ctx, cfg, os.Args[1:]); err != nil {
			logger.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.PGAutoMigrate {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	redisOpts := jobs.RedisOpts(cfg.RedisAddr)
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	auditSink := audit.NewQueueSink(jobClient, metrics.AuditEnqueueFailures())

	roleService := roles.NewService(roles.NewRepository(pool), auditSink, logger)
	userService := users.NewService(users.NewRepository(pool), roleService, users.BcryptHasher{Cost: bcrypt.DefaultCost}, auditSink, logger)
	rbacService := rbac.NewService(userService, roleService, rbac.DefaultCatalog())
	guard := rbac.Middleware{Service: rbacService, Logger: logger, Observer: metrics}
	auditService := audit.NewService(audit.NewPGStore(pool))
	tokens := app.NewTokens(cfg.JWTSecret, cfg.JWTIssuer)
	authService := auth.NewService(auth.NewRepository(pool), tokens, cfg.JWTTTL, auditSink, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Tokens:       tokens,
		Metrics:      metrics,
		AuthHandler:  auth.NewHandler(logger, authService),
		RolesHandler: roles.NewHandler(logger, roleService, guard),
		UsersHandler: users.NewHandler(logger, userService, guard, cfg.RegistrationAssignBy),
		RBACHandler:  rbac.NewHandler(logger, rbacService, guard),
		AuditHandler: audithttp.NewHandler(logger, auditService, guard),
		JobHandler:   jobs.NewHandler(inspector, logger),
		Readiness: map[string]app.ReadinessChecker{
			"postgres": db.NewReadiness(pool),
			"redis":    cache.NewReadiness(redisClient),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runCommand(ctx context.Context, cfg *app.Config, args []string) error {
	switch args[0] {
	case "migrate":
		return db.Migrate(cfg.PGDSN, slog.Default())
	case "token":
		if len(args) < 2 {
			return errors.New("usage: veeduria token <user-id> [ttl]")
		}
		userID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("parse user id: %w", err)
		}
		ttl := time.Hour
		if len(args) > 2 {
			if ttl, err = time.ParseDuration(args[2]); err != nil {
				return fmt.Errorf("parse ttl: %w", err)
			}
		}
		token, err := app.NewTokens(cfg.JWTSecret, cfg.JWTIssuer).Issue(userID, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	case "jobs":
		jobsCLI := cli.NewJobsCLI(jobs.RedisOpts(cfg.RedisAddr))
		defer jobsCLI.Close()
		return jobsCLI.Run(ctx, os.Stdout, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
