// Package cmd defines the renderctl commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/logging"
	"github.com/JakeFAU/bluemap-render/internal/session"
	"github.com/JakeFAU/bluemap-render/pkg/config"
)

type appKeyType string

const appKey appKeyType = "app"

// App holds what every subcommand needs.
type App struct {
	Config  config.Client
	Logger  *zap.Logger
	Session *session.Store
}

// Close flushes the logger.
func (a *App) Close() {
	_ = a.Logger.Sync()
}

// newApp is a variable so tests can inject their own.
var newApp = func(cfg config.Client, verbose bool) (*App, error) {
	logger := zap.NewNop()
	if verbose {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		l, err := logging.NewFile(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		logger = l
	}
	return &App{
		Config:  cfg,
		Logger:  logger,
		Session: session.New(cfg.SessionFile),
	}, nil
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:           "renderctl",
		Short:         "Trigger BlueMap renders from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.InitConfig(cfgFile); err != nil {
				return err
			}
			app, err := newApp(config.Load(), verbose)
			if err != nil {
				return fmt.Errorf("initialize renderctl: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if app, err := resolveApp(cmd.Context()); err == nil {
				app.Close()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or the user config dir)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "write a log file")
	flags.String("server", "", "render service base URL")
	flags.String("session", "", "session file path")
	_ = viper.BindPFlag(config.KeyServerURL, flags.Lookup("server"))
	_ = viper.BindPFlag(config.KeySessionFile, flags.Lookup("session"))

	cmd.AddCommand(newRenderCmd(), newLogoutCmd(), newLoginCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	if ctx == nil {
		return nil, errors.New("application services not initialized")
	}
	app, ok := ctx.Value(appKey).(*App)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "renderctl:", err)
		os.Exit(1)
	}
}
