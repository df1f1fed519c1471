// volcanion-authd serves the volcanion-auth JSON API backed by Postgres
// and Redis.
//
//	volcanion-authd --config /etc/volcanion/auth.yaml
//
// Flags override the matching config fields. Token keys are usually
// supplied through ${ENV} references inside the YAML file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	volcanion "github.com/rickymta/volcanion-auth"
	"github.com/rickymta/volcanion-auth/internal/httpapi"
	"github.com/rickymta/volcanion-auth/store/postgres"
)

type options struct {
	configPath  string
	addr        string
	dsn         string
	redisAddrs  []string
	migrate     bool
	logLevel    string
	logJSON     bool
	notifyLog   bool
	maintenance time.Duration
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("volcanion-authd", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config (defaults apply when empty)")
	fs.StringVar(&opts.addr, "addr", "", "listen address, overrides server.addr")
	fs.StringVar(&opts.dsn, "dsn", "", "Postgres DSN, overrides database.dsn")
	fs.StringSliceVar(&opts.redisAddrs, "redis", nil, "Redis address(es), overrides redis.addrs")
	fs.BoolVar(&opts.migrate, "migrate", false, "apply the schema before serving")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.BoolVar(&opts.logJSON, "log-json", false, "emit JSON log records")
	fs.BoolVar(&opts.notifyLog, "notify-log", false, "log reset and verification tokens instead of delivering them (development only)")
	fs.DurationVar(&opts.maintenance, "maintenance-interval", 0, "maintenance period, overrides server.maintenance_interval")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return opts, nil
}

func loadConfig(opts options) (volcanion.Config, error) {
	cfg := volcanion.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = volcanion.LoadConfig(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.dsn != "" {
		cfg.Database.DSN = opts.dsn
	}
	if len(opts.redisAddrs) > 0 {
		cfg.Redis.Addrs = opts.redisAddrs
	}
	if opts.migrate {
		cfg.Database.Migrate = true
	}
	if opts.maintenance > 0 {
		cfg.Server.MaintenanceInterval = volcanion.Duration(opts.maintenance)
	}
	if cfg.Database.DSN == "" {
		return cfg, errors.New("database dsn is required")
	}
	if len(cfg.Redis.Addrs) == 0 {
		return cfg, errors.New("at least one redis address is required")
	}
	return cfg, cfg.Validate()
}

func newLogger(opts options) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", opts.logLevel, err)
	}
	ho := &slog.HandlerOptions{Level: level}
	if opts.logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, ho)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, ho)), nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	logger, err := newLogger(opts)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema applied")
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	builder := volcanion.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(db).
		WithPermissionStore(db).
		WithTokenRepository(db).
		WithLogger(logger)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(volcanion.NewSlogSink(logger.With("component", "audit")))
	}
	if opts.notifyLog {
		builder = builder.WithNotifier(logNotifier{logger: logger})
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Close()

	api := httpapi.New(engine, httpapi.Options{
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		TrustForwardedFor: cfg.Server.TrustForwardedFor,
		Logger:            logger,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go runMaintenance(ctx, engine, cfg.Server.MaintenanceInterval.D(), logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.D())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type maintainer interface {
	RunMaintenance(ctx context.Context) (volcanion.MaintenanceReport, error)
}

func runMaintenance(ctx context.Context, m maintainer, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := m.RunMaintenance(ctx)
			if err != nil {
				logger.Warn("maintenance incomplete", "err", err)
			}
			logger.Info("maintenance",
				"refresh_tokens_purged", report.RefreshTokensPurged,
				"grants_expired", report.GrantsExpired,
				"one_time_tokens_purged", report.OneTimeTokensPurged,
			)
		}
	}
}
