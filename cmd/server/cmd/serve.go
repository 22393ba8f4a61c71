package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tonight-api/internal/auth"
	"tonight-api/internal/config"
	"tonight-api/internal/handler"
	"tonight-api/internal/metrics"
	"tonight-api/internal/middleware"
	"tonight-api/internal/server"
	"tonight-api/internal/store"
	"tonight-api/internal/telemetry"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the events API",
	Long: `Start the raw HTTP/1.1 acceptor and serve one request per connection.

The server will:
- Load configuration from the environment (and --env-file, if given)
- Apply embedded migrations when MIGRATE_ON_START is true
- Expose /metrics on METRICS_ADDR and gRPC health on HEALTH_GRPC_PORT, if set
- Drain in-flight connections on SIGINT/SIGTERM

Examples:
  server serve
  server serve --port 9090 --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	// root runs serve by default, so both accept the listen flags
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
		c.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("auth_mode", cfg.Auth.Mode).Msg("starting tonight api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	if cfg.Database.MigrateOnStart {
		if err := store.MigrateUp(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info().Msg("migrations applied")
	}

	poolCtx, poolCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := store.Open(poolCtx, cfg.Database.URL, cfg.Database.MaxConnections)
	poolCancel()
	if err != nil {
		return err
	}
	defer pool.Close()
	st := store.New(pool)

	authn, err := auth.New(cfg.Auth, logger)
	if err != nil {
		return err
	}
	h := handler.New(st, authn, handler.Options{StrictStatus: cfg.Server.StrictStatus})

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.PerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
		go limiter.Run(ctx, time.Minute, 10*time.Minute)
	}

	if cfg.Server.HealthGRPCPort > 0 {
		health, err := startHealth(ctx, cfg.Server, st, logger)
		if err != nil {
			return err
		}
		defer health.Stop()
		context.AfterFunc(ctx, func() { health.SetServing(false) })
	}

	if cfg.Metrics.Addr != "" {
		ms := startMetrics(cfg.Metrics.Addr, logger)
		defer ms.Close()
	}

	srv := server.New(cfg.Server, h, limiter, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(envFiles()...)
	if err != nil {
		return config.Config{}, err
	}

	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// startHealth reports SERVING once the database answers.
func startHealth(ctx context.Context, cfg config.ServerConfig, st *store.Store, logger zerolog.Logger) (*server.Health, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.HealthGRPCPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen health %s: %w", addr, err)
	}

	health := server.NewHealth()
	go func() {
		logger.Info().Str("addr", addr).Msg("grpc health listening")
		if err := health.Serve(ln); err != nil {
			logger.Error().Err(err).Msg("grpc health server error")
		}
	}()

	if err := st.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("database ping failed, health stays NOT_SERVING")
		return health, nil
	}
	health.SetServing(true)
	return health, nil
}

func startMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	ms := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	return ms
}
