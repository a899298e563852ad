package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/taskalloc/core/allocation"
	"github.com/kilianp07/taskalloc/core/events"
	coremetrics "github.com/kilianp07/taskalloc/core/metrics"
	"github.com/kilianp07/taskalloc/core/runlog"
	"github.com/kilianp07/taskalloc/infra/logger"
	"github.com/kilianp07/taskalloc/infra/metrics"
	"github.com/kilianp07/taskalloc/internal/eventbus"
	"github.com/kilianp07/taskalloc/pkg/export"
	"github.com/kilianp07/taskalloc/situation"
)

var (
	allocFormat string
	allocOut    string
	allocSeed   int64
	allocNoLog  bool
)

var allocateCmd = &cobra.Command{
	Use:   "allocate <situation>",
	Short: "Allocate attack agents of a situation file to defense groups",
	Args:  cobra.ExactArgs(1),
	RunE:  runAllocate,
}

func init() {
	allocateCmd.Flags().StringVarP(&allocFormat, "format", "f", "json", "output format: json, yaml or csv")
	allocateCmd.Flags().StringVarP(&allocOut, "out", "o", "", "output file (stdout when empty)")
	allocateCmd.Flags().Int64Var(&allocSeed, "seed", 0, "override allocation.seed")
	allocateCmd.Flags().BoolVar(&allocNoLog, "no-log", false, "do not append the record to the run log")
	rootCmd.AddCommand(allocateCmd)
}

func runAllocate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sit, err := situation.Load(args[0])
	if err != nil {
		return err
	}
	conv, err := situation.Converter{}.Convert(sit)
	if err != nil {
		return err
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	bus := eventbus.NewTyped[events.RunEvent]()
	collected := metrics.StartEventCollector(ctx, bus, sink)
	defer func() {
		bus.Close()
		<-collected
	}()

	params := cfg.Allocation
	if allocSeed != 0 {
		params.Seed = allocSeed
	}
	engine, err := allocation.NewEngine(params,
		allocation.WithLogger(logger.New("allocation")),
		allocation.WithSink(sink),
		allocation.WithBus(bus),
	)
	if err != nil {
		return err
	}
	res, err := engine.Allocate(conv.Snapshot)
	if err != nil {
		return err
	}
	rec := export.FromResult(res)

	if !allocNoLog {
		if err := appendRunLog(ctx, rec); err != nil {
			return err
		}
	}
	w, closeFn, err := output(cmd.OutOrStdout(), allocOut)
	if err != nil {
		return err
	}
	if err := writeRecord(w, rec, allocFormat); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}

func appendRunLog(ctx context.Context, rec export.Record) error {
	store, err := runlog.Open(cfg.RunLog)
	if err != nil {
		return fmt.Errorf("run log: %w", err)
	}
	if store == nil {
		return nil
	}
	defer store.Close()
	return store.Append(ctx, rec)
}
