package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/client"
	"github.com/JakeFAU/bluemap-render/internal/clock/system"
	"github.com/JakeFAU/bluemap-render/internal/trigger"
	"github.com/JakeFAU/bluemap-render/internal/tui"
	"github.com/JakeFAU/bluemap-render/pkg/config"
)

func newRenderCmd() *cobra.Command {
	var source, target string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Open the render page for a source file",
		Long: `Opens an interactive render page. Press enter to render the source file
to the target path with the selected preset; the page reports the elapsed time
and the outcome.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runRender(cmd, app, trigger.Params{Source: source, Target: target})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source file, relative to your home directory")
	cmd.Flags().StringVar(&target, "target", "", "output path under blue/")
	cmd.Flags().String("preset", "", "render preset (default is the server default)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	_ = viper.BindPFlag(config.KeyPreset, cmd.Flags().Lookup("preset"))
	return cmd
}

func runRender(cmd *cobra.Command, app *App, params trigger.Params) error {
	api := client.New(app.Config.ServerURL, nil, app.Logger.Named("client"))

	presets, def, err := api.Presets(cmd.Context())
	if err != nil {
		app.Logger.Warn("list presets failed", zap.Error(err))
	}
	preset := viper.GetString(config.KeyPreset)
	if preset == "" {
		preset = def
	}
	if preset != "" && !contains(presets, preset) {
		presets = append(presets, preset)
	}

	err = tui.Run(cmd.Context(), tui.Config{
		Params:        params,
		Presets:       presets,
		DefaultPreset: preset,
		Submitter:     api,
		Tokens:        app.Session,
		Tickers:       system.New(),
		Cookies:       app.Session,
		Local:         app.Session,
		Logger:        app.Logger.Named("page"),
	})
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
