package cli

import (
	"fmt"

	"github.com/harun/browsy/pkg/browsy"
	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the browsy server",
	Long: `Stop and start the browsy server behind a running bridge. Every agent
session is dropped; agents get fresh sessions on their next call.`,
	RunE: runRestart,
}

func init() {
	rootCmd.AddCommand(restartCmd)
}

func runRestart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var info browsy.ServerInfo
	if err := newGatewayClient(cfg).call(cmd.Context(), "browsy.restart", nil, "", &info); err != nil {
		return fmt.Errorf("restart failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status: %s\n", info.Status)
	fmt.Fprintf(out, "Port: %d\n", info.Port)
	if info.PID > 0 {
		fmt.Fprintf(out, "PID: %d\n", info.PID)
	}
	return nil
}
