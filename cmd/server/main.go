package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-btp/internal/config"
	"github.com/diewo77/go-btp/internal/db"
	"github.com/diewo77/go-btp/internal/jobs"
	"github.com/diewo77/go-btp/internal/lock"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/mail"
	"github.com/diewo77/go-btp/internal/notify"
	"github.com/diewo77/go-btp/internal/pdf"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:           "btp-server",
	Short:         "Construction site management API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run DB migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, d, err := bootstrap(false)
		if err != nil {
			return err
		}
		defer log.Sync()
		if err := db.Migrate(d, cfg.App.Migrations, cfg.Database.URL(), log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations completed")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed profiles, the admin account and notification types",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, d, err := bootstrap(true)
		if err != nil {
			return err
		}
		defer log.Sync()
		if err := db.Seed(d, cfg.App.AdminEmail, cfg.App.AdminPassword); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		n, err := notify.NewService(d, mail.New(cfg.Mail, log), log, cfg.App.BaseURL).SeedDefaults(cmd.Context())
		if err != nil {
			return fmt.Errorf("seed notification types: %w", err)
		}
		log.Info("seeding completed", "notification_types", n)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge-notifications",
	Short: "Delete expired notifications once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, d, err := bootstrap(true)
		if err != nil {
			return err
		}
		defer log.Sync()
		svc := notify.NewService(d, mail.New(cfg.Mail, log), log, cfg.App.BaseURL)
		n, err := jobs.PurgeOnce(cmd.Context(), svc, time.Now(), 5*time.Minute)
		if err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		log.Info("expired notifications deleted", "count", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, purgeCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger and opens the database. When migrate is set the
// schema is brought up to date first.
func bootstrap(migrate bool) (*config.Config, *logger.Logger, *gorm.DB, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}
	d, err := db.Open(cfg.Database, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if migrate {
		if err := db.Migrate(d, cfg.App.Migrations, cfg.Database.URL(), log); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return cfg, log, d, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, d, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.App.Seed {
		if err := db.Seed(d, cfg.App.AdminEmail, cfg.App.AdminPassword); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	ctx := cmd.Context()
	locker := lock.Chain{lock.NewKeyedMutex()}
	if cfg.Redis.URL != "" {
		rdb, err := lock.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = append(locker, lock.NewRedisLocker(rdb, cfg.Redis.LockTTL, log))
		log.Info("distributed locking enabled")
	}

	mailer := mail.New(cfg.Mail, log)
	raster := pdf.NewRasterizer(cfg.PDF, log)
	if c, ok := raster.(io.Closer); ok {
		defer c.Close()
	}
	notifier := notify.NewService(d, mailer, log, cfg.App.BaseURL)
	if cfg.App.Seed {
		if _, err := notifier.SeedDefaults(ctx); err != nil {
			return fmt.Errorf("seed notification types: %w", err)
		}
	}

	sched := jobs.NewScheduler(log)
	if cfg.Jobs.PurgeSchedule != "" {
		if err := sched.AddPurge(cfg.Jobs.PurgeSchedule, notifier); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	app := NewApp(Deps{
		DB:         d,
		Config:     cfg,
		Log:        log,
		Mailer:     mailer,
		Rasterizer: raster,
		Locker:     locker,
		Notify:     notifier,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
	log.Info("server stopped")
	return nil
}
