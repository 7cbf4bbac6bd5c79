package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"receipts/internal/cli"
	"receipts/internal/config"
	applog "receipts/internal/log"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:           "receiptsctl",
		Short:         "Inspect and repair monthly receipt totals",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newShowCmd(cfg, &jsonOutput),
		newListCmd(cfg, &jsonOutput),
		newRecalcCmd(cfg, &jsonOutput),
		newYearCmd(cfg, &jsonOutput),
		newRmCmd(cfg, &jsonOutput),
		newAddCmd(cfg, &jsonOutput),
		newExportCmd(cfg, &jsonOutput),
	)

	return cmd
}

// cliLogger writes to stderr so command output stays machine readable.
// It is quiet unless LOG_LEVEL asks for more.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		level = applog.ParseLevel(v)
	}
	return applog.New(applog.Config{
		Level:     level,
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})
}

// withServices validates the configuration, builds the services and closes
// them when fn returns.
func withServices(ctx context.Context, cfg *config.Config, fn func(*cli.Services) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	svc, err := cli.BuildServices(ctx, cfg, cliLogger())
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}
