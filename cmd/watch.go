package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/taskalloc/app"
	"github.com/kilianp07/taskalloc/core/monitoring"
	"github.com/kilianp07/taskalloc/infra/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Allocate every situation received over MQTT and publish the result",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	defer monitoring.Recover(map[string]string{"module": "watch"})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
