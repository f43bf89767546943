package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeagent/config"
)

var rootCmd = &cobra.Command{
	Use:   "tradeagent",
	Short: "Scheduled trading agent driven by an external prediction service",
	Long: `Tradeagent runs a daily trade cycle against a broker gateway.

Each cycle it:
  - applies any pending manual command (CLOSE_ALL, PAUSE_NEW_ENTRIES, RESTART_LOGIC)
  - fetches historical bars and asks the signal service for a call
  - reconciles its persisted position with the broker
  - opens a risk-sized bracket order on a Buy (or a discounted test order)

Order fills are tracked as they stream in from the broker.`,
	SilenceUsage: true,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
}

// loadConfig reads --config, or validates the defaults when it is unset.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
