// Package main provides the timeaxis CLI entry point.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime/debug"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"timeaxis/internal/config"
	appLog "timeaxis/internal/log"
)

// version is set via ldflags at release time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveVersion prefers the ldflags version and falls back to the module
// version recorded by go install.
func resolveVersion(ldflags string, info *debug.BuildInfo) string {
	if ldflags != "dev" {
		return ldflags
	}
	if info == nil || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

func currentVersion() string {
	info, _ := debug.ReadBuildInfo()
	return resolveVersion(version, info)
}

// newRootCmd creates the root command for the timeaxis CLI.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "timeaxis",
		Short:         "Calendar-aware timeline engine",
		Long:          "Timeaxis lays calendar feeds out on a zoomable time axis and serves the result over HTTP.",
		Version:       currentVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if !cmd.Flags().Changed("config") {
				configPath = config.Path(configPath)
			}
			return nil
		},
	}
	rootCmd.SetVersionTemplate("timeaxis version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config (or $"+config.EnvPath+")")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newSnapshotCmd(&configPath))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "timeaxis version %s\n", currentVersion())
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	appLog.Debug("effective config",
		"path", path,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"week_start", cfg.WeekStart,
		"refresh", cfg.RefreshCron,
		"ics_count", len(cfg.ICS),
		"hidden_dates", len(cfg.HiddenDates),
		"cluster", cfg.Cluster.Enabled,
	)
	return cfg, nil
}
