// Command catalogd runs the restaurant catalog sync service.
//
//	catalogd serve       HTTP API, optionally with workers and scheduler
//	catalogd worker      job workers and scheduler only
//	catalogd migrate     apply database migrations
//	catalogd template    print a restaurant's spreadsheet header
//	catalogd token       mint an API bearer token
//	catalogd credential  store a point-of-sale credential
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/catalogsync/internal/config"
	"github.com/JonMunkholm/catalogsync/internal/core"
	"github.com/JonMunkholm/catalogsync/internal/jobs"
	"github.com/JonMunkholm/catalogsync/internal/logging"
	"github.com/JonMunkholm/catalogsync/internal/notify"
	"github.com/JonMunkholm/catalogsync/internal/pos"
	"github.com/JonMunkholm/catalogsync/internal/registry"
	"github.com/JonMunkholm/catalogsync/internal/store"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds global flags.
type rootOptions struct {
	envFile string
	cfg     *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "catalogd",
		Short:         "Restaurant catalog synchronization service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(opts.envFile); err != nil {
				slog.Debug("no env file loaded, using environment variables", "file", opts.envFile)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newWorkerCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newTemplateCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newCredentialCommand(opts))

	return cmd
}

// app is the wired service and what it owns.
type app struct {
	cfg   *config.Config
	store *store.Store
	queue *store.Queue
	vault *pos.Vault
	svc   *core.Service
}

// openApp connects the store and builds the service from cfg.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("connected to database", "dialect", st.Dialect())

	a := &app{cfg: cfg, store: st, queue: st.Queue(cfg.Queue.SerializePerRestaurant)}
	if err := a.wire(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Database.AutoMigrate {
		applied, err := a.store.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		slog.Info("migrations applied", "count", len(applied))
	}

	reg := registry.Default()
	if cfg.Registry.Path != "" {
		var err error
		if reg, err = registry.Load(cfg.Registry.Path); err != nil {
			return fmt.Errorf("load registry: %w", err)
		}
		slog.Info("option registry loaded", "path", cfg.Registry.Path)
	}

	senders := notify.Multi{notify.LogSender{}}
	if cfg.Notify.TelegramToken != "" {
		bot, err := notify.NewTelegramBot(cfg.Notify.TelegramToken)
		if err != nil {
			return err
		}
		senders = append(senders, notify.NewTelegramSender(bot, cfg.Notify.TelegramChatID))
		slog.Info("telegram notifications enabled", "chat_id", cfg.Notify.TelegramChatID)
	}

	deps := core.Deps{
		Catalog:  a.store,
		Queue:    a.queue,
		Records:  a.store,
		Registry: reg,
		Notifier: senders,
		Limiter:  core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
	}

	if cfg.POS.Enabled() {
		cipher, err := pos.NewCipherFromBase64(cfg.POS.CredentialsKey)
		if err != nil {
			return fmt.Errorf("pos credentials key: %w", err)
		}
		hc := &http.Client{Timeout: cfg.POS.HTTPTimeout}
		a.vault = pos.NewVault(a.store, cipher,
			pos.NewRefresher(cfg.POS.ClientID, cfg.POS.ClientSecret, cfg.POS.TokenURL, hc))
		deps.Credentials = a.vault
		deps.Inventory = pos.NewClient(cfg.POS.APIBaseURL, hc)
		slog.Info("point-of-sale integration enabled", "api", cfg.POS.APIBaseURL)
	}

	a.svc = core.NewService(deps)
	return nil
}

func (a *app) Close() { a.store.Close() }

// pool builds the worker pool for the app's queue.
func (a *app) pool() *jobs.Pool {
	return jobs.NewPool(a.queue, a.svc, jobs.PoolConfig{
		Concurrency:   a.cfg.Worker.Concurrency,
		PollInterval:  a.cfg.Worker.PollInterval,
		JobTimeout:    a.cfg.Worker.JobTimeout,
		OnFailure:     a.svc.OnJobFailed,
		DescribeError: core.DescribeError,
	})
}

func (a *app) schedulerConfig() core.SchedulerConfig {
	s := a.cfg.Scheduler
	return core.SchedulerConfig{
		TokenRefreshInterval: s.TokenRefreshInterval,
		TokenRefreshWindow:   s.TokenRefreshWindow,
		LeaseTimeout:         a.cfg.Queue.LeaseTimeout,
		LeaseCheckInterval:   s.LeaseCheckInterval,
		AuditRetention:       s.AuditRetention(),
		AuditPurgeInterval:   s.AuditPurgeInterval,
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
