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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/api"
	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/browser"
	"github.com/infiniteinsight/spectral/internal/commands"
	"github.com/infiniteinsight/spectral/internal/mail"
	"github.com/infiniteinsight/spectral/internal/removal"
	"github.com/infiniteinsight/spectral/internal/scheduler"
	"github.com/infiniteinsight/spectral/internal/websocket"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr   string
	dataDir    string
	brokersDir string
	logLevel   string
	smtpHost   string
	smtpPort   int
	smtpUser   string
	smtpPass   string
	smtpFrom   string
	smtpTLS    bool
	imapHost   string
	imapPort   int
	imapUser   string
	imapPass   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "spectral",
		Short: "Spectral — personal data broker removal assistant",
		Long: `Spectral scans data broker sites for a user's exposed personal
information, tracks findings, and drives removal requests to completion.
The desktop shell talks to this process over a loopback HTTP surface.`,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd(cfg))

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("spectral %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newServeCmd(cfg *config) *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the loopback command server the desktop shell connects to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	serve.Flags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("SPECTRAL_HTTP_ADDR", "127.0.0.1:7420"), "loopback listen address for the command/WebSocket surface")
	serve.Flags().StringVar(&cfg.dataDir, "data-dir", envOrDefault("SPECTRAL_DATA_DIR", "./data"), "directory holding per-vault sqlite files")
	serve.Flags().StringVar(&cfg.brokersDir, "brokers-dir", envOrDefault("SPECTRAL_BROKERS_DIR", "./brokers"), "directory of broker definition JSON files")
	serve.Flags().StringVar(&cfg.logLevel, "log-level", envOrDefault("SPECTRAL_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	serve.Flags().StringVar(&cfg.smtpHost, "smtp-host", envOrDefault("SPECTRAL_SMTP_HOST", ""), "SMTP host for email-based removal submissions (empty disables email removals)")
	serve.Flags().IntVar(&cfg.smtpPort, "smtp-port", 587, "SMTP port")
	serve.Flags().StringVar(&cfg.smtpUser, "smtp-user", envOrDefault("SPECTRAL_SMTP_USER", ""), "SMTP username")
	serve.Flags().StringVar(&cfg.smtpPass, "smtp-pass", envOrDefault("SPECTRAL_SMTP_PASS", ""), "SMTP password")
	serve.Flags().StringVar(&cfg.smtpFrom, "smtp-from", envOrDefault("SPECTRAL_SMTP_FROM", ""), "From address for removal request emails")
	serve.Flags().BoolVar(&cfg.smtpTLS, "smtp-tls", envOrDefault("SPECTRAL_SMTP_TLS", "false") == "true", "use implicit TLS (SMTPS) instead of STARTTLS")

	serve.Flags().StringVar(&cfg.imapHost, "imap-host", envOrDefault("SPECTRAL_IMAP_HOST", ""), "IMAP host for polling removal confirmation replies (empty disables polling)")
	serve.Flags().IntVar(&cfg.imapPort, "imap-port", 993, "IMAP port")
	serve.Flags().StringVar(&cfg.imapUser, "imap-user", envOrDefault("SPECTRAL_IMAP_USER", ""), "IMAP username")
	serve.Flags().StringVar(&cfg.imapPass, "imap-pass", envOrDefault("SPECTRAL_IMAP_PASS", ""), "IMAP password")

	return serve
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting spectral",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("data_dir", cfg.dataDir),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	registry, err := broker.LoadDirectory(cfg.brokersDir, logger)
	if err != nil {
		return fmt.Errorf("failed to load broker definitions: %w", err)
	}
	logger.Info("loaded broker definitions", zap.Int("count", registry.Len()))

	// A real headless browser engine is out of scope: FakeActions stands in
	// as the Actions implementation until one is wired in.
	actions := browser.NewFakeActions()

	var mailer removal.Sender
	if cfg.smtpHost != "" {
		mailer = mail.NewSender(mail.SMTPConfig{
			Host:     cfg.smtpHost,
			Port:     cfg.smtpPort,
			Username: cfg.smtpUser,
			Password: cfg.smtpPass,
			From:     cfg.smtpFrom,
			TLS:      cfg.smtpTLS,
		})
	}

	// The IMAP verification poller needs the unlocked vault's removal
	// attempt repository, which only exists once a vault session is open,
	// so it cannot be constructed once here the way the SMTP sender can.
	// verify_removals ticks are a no-op until a per-session poller is wired
	// into commands.Service.
	var verifier scheduler.RemovalVerifier
	if cfg.imapHost != "" {
		logger.Warn("imap polling is configured but not yet wired into the vault session lifecycle; verify_removals will be a no-op")
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	svc := commands.New(cfg.dataDir, registry, actions, mailer, verifier, hub, logger)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Hub:     hub,
		Logger:  logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down spectral")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("spectral stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
