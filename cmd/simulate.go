package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/taskalloc/core/monitoring"
	"github.com/kilianp07/taskalloc/infra/logger"
	"github.com/kilianp07/taskalloc/infra/telemetry"
	"github.com/kilianp07/taskalloc/simulator"
)

var (
	simSteps     int
	simEvery     int
	simBroadcast bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <record>",
	Short: "Fly the groups of an allocation record and report formation performance",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simSteps, "steps", 0, "override simulation.steps")
	simulateCmd.Flags().IntVar(&simEvery, "every", 10, "print performance every n steps")
	simulateCmd.Flags().BoolVar(&simBroadcast, "broadcast", false, "send platform status over UDP (implied by telemetry.enabled)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logger.New("simulate")

	rec, err := readRecord(args[0])
	if err != nil {
		return err
	}
	simCfg := cfg.Simulation
	if simSteps > 0 {
		simCfg.Steps = simSteps
	}
	sim, err := simulator.New(simCfg, rec, nil)
	if err != nil {
		return err
	}

	var (
		bc     *telemetry.Broadcaster
		paused atomic.Bool
	)
	if simBroadcast || cfg.Telemetry.Enabled {
		bc, err = telemetry.NewBroadcaster(cfg.Telemetry,
			telemetry.WithLogger(logger.New("telemetry")),
			telemetry.WithStepInterval(simCfg.StepInterval),
		)
		if err != nil {
			return err
		}
		defer func() {
			stop()
			_ = bc.Close()
		}()
		if err := bc.Register(); err != nil {
			log.Warnf("node registration: %v", err)
		}
		monitoring.Go(map[string]string{"module": "telemetry"}, func() {
			err := bc.Serve(ctx, func(c telemetry.ControlType) bool {
				switch c {
				case telemetry.ControlStop, telemetry.ControlReturnHome:
					stop()
				case telemetry.ControlPause:
					paused.Store(true)
				case telemetry.ControlStart, telemetry.ControlResume:
					paused.Store(false)
				}
				return true
			})
			if err != nil && ctx.Err() == nil {
				log.Errorf("telemetry serve: %v", err)
			}
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	every := simEvery
	if every <= 0 {
		every = 1
	}
	err = sim.Run(ctx, func(f simulator.Frame) error {
		for paused.Load() && ctx.Err() == nil {
			time.Sleep(100 * time.Millisecond)
		}
		if bc != nil {
			if err := bc.Broadcast(rec, f); err != nil {
				log.Warnf("broadcast step %d: %v", f.Step, err)
			}
		}
		if f.Step%every == 0 || f.Step == simCfg.Steps {
			return enc.Encode(sim.Performance())
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("simulate: %w", err)
	}
	return nil
}
