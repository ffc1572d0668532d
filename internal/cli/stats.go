package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/engine"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// StatsResult is the journal summary printed by the stats command.
type StatsResult struct {
	Reports   []engine.StatReport       `json:"reports"`
	Callbacks []engine.TimelineCallback `json:"callbacks"`
	Summary   StatsSummary              `json:"summary"`
}

// StatsSummary aggregates the listed reports.
type StatsSummary struct {
	Cycles        int     `json:"cycles"`
	CacheHits     int     `json:"cacheHits"`
	MaxTotal      int64   `json:"maxTotalDuration"`
	MeanTotal     float64 `json:"meanTotalDuration"`
	OverEstimate  int     `json:"overEstimate"`
	LastResolveAt int64   `json:"lastResolveTime"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show journaled resolve cycles and timeline callbacks",
		Long: `Show the latest stat reports and timeline callbacks journaled by
"tsr run --db".

A cycle is counted as over its estimate when its resolve phase took longer
than the estimated resolve time it was scheduled with.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of latest entries to show (0 for all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	reports, err := st.ReadStatReports(ctx, opts.Limit)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeDatabase, "failed to read stat reports", err)
	}
	callbacks, err := st.ReadTimelineCallbacks(ctx, opts.Limit)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeDatabase, "failed to read timeline callbacks", err)
	}

	return f.Success(&StatsResult{
		Reports:   reports,
		Callbacks: callbacks,
		Summary:   summarize(reports),
	})
}

func summarize(reports []engine.StatReport) StatsSummary {
	s := StatsSummary{Cycles: len(reports)}
	if len(reports) == 0 {
		return s
	}

	var total int64
	for _, r := range reports {
		if r.CacheHit {
			s.CacheHits++
		}
		if r.TotalDuration > s.MaxTotal {
			s.MaxTotal = r.TotalDuration
		}
		if r.ResolveDuration > r.EstimatedResolveTime {
			s.OverEstimate++
		}
		total += r.TotalDuration
	}
	s.MeanTotal = float64(total) / float64(len(reports))
	s.LastResolveAt = reports[len(reports)-1].ResolveTime
	return s
}

// WriteText implements textWriter.
func (r *StatsResult) WriteText(w io.Writer) error {
	fmt.Fprintln(w, "=== Resolve Cycles ===")
	if len(r.Reports) == 0 {
		fmt.Fprintln(w, "  (no cycles)")
	}
	for _, rep := range r.Reports {
		cache := ""
		if rep.CacheHit {
			cache = " cached"
		}
		fmt.Fprintf(w, "  #%d %-10s at %d for %d: %d objects, resolve %dms (est %dms), dispatch %dms, total %dms%s\n",
			rep.Seq, rep.Reason, rep.Time, rep.ResolveTime, rep.TimelineSize,
			rep.ResolveDuration, rep.EstimatedResolveTime, rep.DispatchDuration, rep.TotalDuration, cache)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline Callbacks ===")
	if len(r.Callbacks) == 0 {
		fmt.Fprintln(w, "  (no callbacks)")
	}
	for _, cb := range r.Callbacks {
		fmt.Fprintf(w, "  %d %-5s %s %s\n", cb.Time, cb.Edge, cb.Callback, cb.InstanceID)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Summary ===")
	fmt.Fprintf(w, "  Cycles:        %d\n", r.Summary.Cycles)
	fmt.Fprintf(w, "  Cache hits:    %d\n", r.Summary.CacheHits)
	fmt.Fprintf(w, "  Over estimate: %d\n", r.Summary.OverEstimate)
	fmt.Fprintf(w, "  Max total:     %dms\n", r.Summary.MaxTotal)
	_, err := fmt.Fprintf(w, "  Mean total:    %.1fms\n", r.Summary.MeanTotal)
	return err
}
