package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clouddrive/clouddrive-go/internal/api"
	"github.com/clouddrive/clouddrive-go/internal/config"
	"github.com/clouddrive/clouddrive-go/internal/drive"
	"github.com/clouddrive/clouddrive-go/internal/notify"
	"github.com/clouddrive/clouddrive-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServer     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "clouddrive",
		Short:   "CloudDrive CLI client",
		Long:    "A CLI and TUI client for the CloudDrive file-storage service.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServer, "server", "", "server base URL (overrides config)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newActivateCmd())
	cmd.AddCommand(newForgotPasswordCmd())
	cmd.AddCommand(newResetPasswordCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newViewCmd())
	cmd.AddCommand(newBrowseCmd())

	return cmd
}

// loadConfig resolves the effective configuration and stores it in
// resolvedCfg for use by subcommands. CLI flags win over environment and
// file settings.
func loadConfig() error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagServer != "" {
		cfg.Server.BaseURL = flagServer
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// app bundles the wired client stack for one command invocation: the API
// client, the notification hub, and the session store around the durable
// credential.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *api.Client
	notifier *notify.Hub
	store    *session.Store
}

// newApp wires the stack from the resolved configuration.
func newApp() *app {
	logger := buildLogger()

	httpClient := &http.Client{Timeout: resolvedCfg.RequestTimeout()}
	client := api.NewClient(resolvedCfg.Server.BaseURL, httpClient, logger)
	hub := notify.NewHub(notify.NewConsole(os.Stderr))
	store := session.NewStore(client, config.CredentialPath(), hub, logger)

	return &app{
		cfg:      resolvedCfg,
		logger:   logger,
		client:   client,
		notifier: hub,
		store:    store,
	}
}

// uploaderOptions maps the upload config section onto pipeline options.
func (a *app) uploaderOptions() drive.UploaderOptions {
	return drive.UploaderOptions{
		TickInterval:   a.cfg.TickInterval(),
		TickIncrement:  a.cfg.Upload.TickIncrement,
		FinalizeAt:     a.cfg.Upload.FinalizeAt,
		ProgressLinger: a.cfg.ProgressLinger(),
	}
}

// requireSession hydrates the store and returns the authenticated session,
// or an error telling the user to log in. Nothing reads the session before
// hydration completes.
func (a *app) requireSession(ctx context.Context) (session.Session, error) {
	a.store.Hydrate(ctx)

	snap := a.store.Snapshot()
	if !snap.Authenticated() {
		return session.Session{}, fmt.Errorf("not logged in — run 'clouddrive login' first")
	}

	return snap, nil
}

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// commandTimeout bounds one-shot CLI operations. The browse TUI manages its
// own lifetime instead.
const commandTimeout = 2 * time.Minute

// commandContext returns the context for a one-shot command.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), commandTimeout)
}
