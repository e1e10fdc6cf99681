package cli

import (
	"fmt"

	"github.com/harun/browsy/internal/config"
	"github.com/harun/browsy/internal/daemon"
	"github.com/harun/browsy/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge in the foreground",
	Long: `Run the browsy bridge in the foreground until SIGINT or SIGTERM.
The browsy server is started on demand (or at once when auto_start is set),
the gateway listens for JSON-RPC calls and config file edits apply live.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, config.NewLoader(cfgFile).GetConfigPath(), log)
	if err != nil {
		return err
	}

	if err := d.Start(cmd.Context()); err != nil {
		_ = d.Stop()
		return err
	}

	d.Wait()
	return nil
}
