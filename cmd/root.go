package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/taskalloc/config"
	"github.com/kilianp07/taskalloc/core/monitoring"
	inframon "github.com/kilianp07/taskalloc/infra/monitoring"
)

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "taskalloc",
	Short:         "Shapley-based task group allocation",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (defaults apply when empty)")
}

func loadConfig() error {
	if cfgPath == "" {
		cfg = config.Default()
	} else {
		c, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)
	return nil
}

// Execute runs the CLI. Command errors are reported to the monitor.
func Execute() error {
	defer func() {
		timeout := 2 * time.Second
		if cfg != nil {
			timeout = time.Duration(cfg.Sentry.FlushTimeoutMS) * time.Millisecond
		}
		monitoring.Flush(timeout)
	}()
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		monitoring.CaptureException(err, map[string]string{"module": "cli", "command": cmd.Name()})
	}
	return err
}
