package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/logger"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the persisted trade state",
	Long: `Subcommands:
  show  - Print the trade state as stored
  reset - Restore the default state (same as RESTART_LOGIC)

Reset does not touch the broker; any live position is adopted again by the
next reconciliation.`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted trade state",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the trade state to its defaults",
	Args:  cobra.NoArgs,
	RunE:  runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}

func runStateShow(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, store, err := openRepository(cmd.Context(), cfg.State, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	st, err := repo.Load(cmd.Context())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, store, err := openRepository(cmd.Context(), cfg.State, logger.Named("state"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	if err := repo.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Trade state reset to defaults")
	return nil
}
