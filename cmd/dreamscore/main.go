// DREAMS Core - DNP3 control plane for distributed energy plants.
//
// The core registers plants behind site gateways, assigns their DNP3
// addresses, and turns operator requests into commands for the external
// DNP3 master. `dreamscore serve` runs the long-lived process; the other
// subcommands are one-shot operator tools against the same database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/dreams-grid/dreams-core/migrations"

	"github.com/dreams-grid/dreams-core/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "dreamscore",
		Short:         "DNP3 control core for DREAMS plants",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"config file (default $DREAMS_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn",
		"log level for one-shot commands")

	root.AddCommand(
		newServeCmd(flags),
		newRegisterCmd(flags),
		newMetersCmd(flags),
		newPollCmd(flags),
		newControlCmd(flags),
		newDeadbandCmd(flags),
		newLogCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dreamscore %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// getConfigPath returns the configuration file path: the flag, then
// DREAMS_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("DREAMS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the config file. One-shot commands tolerate a missing
// default file and fall back to built-in defaults; serve does not.
func loadConfig(flags *globalFlags, required bool) (*config.Config, error) {
	path := getConfigPath(flags.configPath)
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !required && flags.configPath == "" && os.Getenv("DREAMS_CONFIG") == "" {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg = config.Default()
			if vErr := cfg.Validate(); vErr != nil {
				return nil, fmt.Errorf("validating default config: %w", vErr)
			}
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("loading config: %w", err)
}
