package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeagent/command"
)

var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Queue a manual command for the next trade cycle",
}

var commandSendCmd = &cobra.Command{
	Use:   "send <CLOSE_ALL|PAUSE_NEW_ENTRIES|RESTART_LOGIC>",
	Short: "Write a command to the agent inbox",
	Long: `Write a command to the agent inbox. The agent consumes it at the start of
its next cycle.

Examples:
  tradeagent command send PAUSE_NEW_ENTRIES --pause
  tradeagent command send PAUSE_NEW_ENTRIES --pause=false
  tradeagent command send CLOSE_ALL`,
	Args: cobra.ExactArgs(1),
	RunE: runCommandSend,
}

var commandPause bool

func init() {
	rootCmd.AddCommand(commandCmd)
	commandCmd.AddCommand(commandSendCmd)
	commandSendCmd.Flags().BoolVar(&commandPause, "pause", false, "PAUSE_NEW_ENTRIES: pause (true) or resume (false) new entries")
}

func runCommandSend(cmd *cobra.Command, args []string) error {
	name := command.Normalize(args[0])
	if !name.Known() {
		return fmt.Errorf("unknown command %q (supported: %v)", args[0], command.Known)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c := command.Command{Name: name, Pause: commandPause}
	if err := command.NewFileInbox(cfg.Inbox.Path).Write(c); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Command '%s' sent to agent.\n", c)
	return nil
}
