// Package main is the forum binary: the HTTP API, schema migration and the
// audit-log event consumer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/secure-forum/internal/config"
	"github.com/iliyamo/secure-forum/internal/database"
	"github.com/iliyamo/secure-forum/internal/events"
	"github.com/iliyamo/secure-forum/internal/logger"
	"github.com/iliyamo/secure-forum/internal/repository"
	"github.com/iliyamo/secure-forum/internal/router"
	"github.com/iliyamo/secure-forum/internal/token"
	"github.com/iliyamo/secure-forum/internal/utils"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "forum",
		Short:         "Secure forum API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), migrateCmd(), consumeCmd(), versionCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	var withConsumer bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(withConsumer)
		},
	}
	cmd.Flags().BoolVar(&withConsumer, "with-consumer", false, "also run the audit event consumer in-process")
	return cmd
}

func migrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the forum tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the demo users and posts")
	return cmd
}

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume-events",
		Short: "Write forum events from RabbitMQ into the audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return errors.New("FORUM_AMQP_URL is not set")
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = events.NewConsumer(cfg.AMQPURL, cfg.EventLogDir, log).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "forum %s\n", Version)
		},
	}
}

func bootstrap() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger.New(cfg.Env, cfg.LogLevel), nil
}

func openExecutor(cfg config.Config, log zerolog.Logger) (*database.Executor, error) {
	db, err := database.Open(database.PoolConfig{
		User:         cfg.DBUser,
		Pass:         cfg.DBPass,
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		Name:         cfg.DBName,
		MaxOpenConns: cfg.DBMaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	return database.NewExecutor(db,
		database.WithAcquireTimeout(cfg.DBAcquireTimeout),
		database.WithLogger(log),
	), nil
}

func serve(withConsumer bool) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	exec, err := openExecutor(cfg, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := exec.Close(); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}()

	tokens, err := token.New(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if rc := config.LoadRedisConfig(); rc.Enabled {
		if rdb, err = config.NewRedisClient(ctx, rc); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, rate limiting and caching disabled")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	if withConsumer && cfg.AMQPURL != "" {
		go func() {
			if err := events.NewConsumer(cfg.AMQPURL, cfg.EventLogDir, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("audit consumer stopped")
			}
		}()
	}

	e := router.New(router.Deps{
		Config:    cfg,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Logger:    log,
		Store:     exec,
		Tokens:    tokens,
		Redis:     rdb,
		Events:    events.NewPublisher(cfg.AMQPURL, log),
	})

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func migrate(seed bool) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	exec, err := openExecutor(cfg, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer exec.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := database.Migrate(ctx, exec); err != nil {
		return err
	}
	log.Info().Msg("schema ready")
	if !seed {
		return nil
	}

	hash := func(p string) (string, error) { return utils.HashPassword(p, cfg.BcryptCost) }
	if err := repository.Seed(ctx, repository.NewUserRepo(exec), repository.NewPostRepo(exec), hash); err != nil {
		return err
	}
	for _, u := range repository.SeedUsers {
		log.Info().Str("username", u.Username).Str("role", string(u.Role)).Msg("demo account, password is <username>123")
	}
	return nil
}
