package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/taskalloc/core/runlog"
)

var (
	histRun   string
	histAgent string
	histSince string
	histUntil string
	histLimit int
	histJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query past allocation runs from the run log",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&histRun, "run", "", "run id")
	historyCmd.Flags().StringVar(&histAgent, "agent", "", "runs involving this agent id")
	historyCmd.Flags().StringVar(&histSince, "since", "", "RFC3339 time or duration back from now, e.g. 24h")
	historyCmd.Flags().StringVar(&histUntil, "until", "", "RFC3339 time or duration back from now")
	historyCmd.Flags().IntVar(&histLimit, "limit", 20, "keep only the most recent n runs (0 for all)")
	historyCmd.Flags().BoolVar(&histJSON, "json", false, "print full records as JSON")
	rootCmd.AddCommand(historyCmd)
}

// parseWhen accepts an RFC3339 timestamp or a duration subtracted from now.
func parseWhen(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or a duration", s)
	}
	return now.Add(-d), nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	start, err := parseWhen(histSince, now)
	if err != nil {
		return err
	}
	end, err := parseWhen(histUntil, now)
	if err != nil {
		return err
	}
	store, err := runlog.Open(cfg.RunLog)
	if err != nil {
		return fmt.Errorf("run log: %w", err)
	}
	if store == nil {
		return fmt.Errorf("run log backend is %q", cfg.RunLog.Backend)
	}
	defer store.Close()

	recs, err := store.Query(ctx, runlog.Query{Start: start, End: end, AgentID: histAgent, RunID: histRun, Limit: histLimit})
	if err != nil {
		return err
	}
	if histJSON {
		for _, rec := range recs {
			if err := writeRecord(cmd.OutOrStdout(), rec, "json"); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tAGENTS\tGROUPS\tRATIO\tMOVES\tGROUP")
	for _, rec := range recs {
		group := ""
		if histAgent != "" {
			if gid, ok := rec.Membership()[histAgent]; ok {
				g, _ := rec.Group(gid)
				group = fmt.Sprintf("%d (%s)", gid, strings.Join(g.DefenseAgents, ","))
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.3f\t%d\t%s\n",
			rec.RunID, rec.CreatedAt.Format(time.RFC3339), rec.Metadata.TotalAgents,
			rec.Metadata.Groups, rec.BalanceAfter.LoadBalanceRatio, len(rec.Moves), group)
	}
	return tw.Flush()
}
