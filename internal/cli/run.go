package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/config"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/engine"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/store"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// shutdownTimeout bounds device removal after the conductor stopped.
const shutdownTimeout = 10 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Timeline  string
	Datastore string
	Database  string

	// EngineOptions are appended to the configured options (for testing).
	EngineOptions []engine.Option
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config.cue>",
		Short: "Start a conductor",
		Long: `Start a conductor with the configured devices and mappings, and play
the given timeline until interrupted.

The datastore is taken from --datastore when given, else from the database.
With --db, stat reports and timeline callbacks are journaled and a
--datastore document is persisted.

Example:
  tsr run studio.cue --timeline rundown.yaml
  tsr run studio.cue --timeline rundown.yaml --db ./tsr.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConductor(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Timeline, "timeline", "", "timeline document (required)")
	cmd.Flags().StringVar(&opts.Datastore, "datastore", "", "datastore document")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	_ = cmd.MarkFlagRequired("timeline")

	return cmd
}

func runConductor(opts *RunOptions, cfgPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	in, err := loadInputs(f, cfgPath, opts.Timeline)
	if err != nil {
		return err
	}

	ds := timeline.Datastore{}
	if opts.Datastore != "" {
		if ds, err = config.LoadDatastore(opts.Datastore); err != nil {
			return configFailure(f, err)
		}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engineOpts := append(in.cfg.Conductor.Options(), engine.WithListener(logEvent))

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		if ds, err = syncDatastore(ctx, st, ds, opts.Datastore != ""); err != nil {
			return f.fail(ExitCommandError, ErrCodeDatabase, "datastore", err)
		}
		lastSeq, err := st.LastStatSeq(ctx)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeDatabase, "journal", err)
		}

		journal := store.NewJournal(st, 0)
		engineOpts = append(engineOpts,
			engine.WithListener(journal.Listen),
			engine.WithStatSeqStart(lastSeq),
		)

		// The journal outlives the conductor so the last reports are
		// written.
		journalCtx, stopJournal := context.WithCancel(context.Background())
		journalDone := make(chan error, 1)
		go func() { journalDone <- journal.Run(journalCtx) }()
		defer func() {
			stopJournal()
			<-journalDone
			if n := journal.Dropped(); n > 0 {
				slog.Warn("journal dropped events", "count", n)
			}
		}()
	}

	c := engine.New(append(engineOpts, opts.EngineOptions...)...)
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	for _, id := range in.cfg.DeviceIDs() {
		if err := c.AddDevice(ctx, id, in.cfg.Devices[id]); err != nil {
			slog.Error("device not added", "device_id", id, "error", err)
		}
	}
	if err := c.SetDatastore(ctx, ds); err != nil && ctx.Err() == nil {
		slog.Error("set datastore failed", "error", err)
	}
	if err := c.SetTimelineAndMappings(ctx, in.objects, in.cfg.Mappings); err != nil && ctx.Err() == nil {
		return f.fail(ExitFailure, ErrCodeResolve, "failed to set timeline", err)
	}

	slog.Info("conductor running", "devices", len(c.Devices()), "timeline_hash", c.TimelineHash())
	fmt.Fprintf(cmd.OutOrStdout(), "Conductor started with %d device(s).\n", len(c.Devices()))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	runErr := <-runDone

	termCtx, termCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer termCancel()
	if err := c.Terminate(termCtx); err != nil {
		slog.Error("device shutdown incomplete", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "conductor error", runErr)
	}
	slog.Info("conductor stopped gracefully")
	return nil
}

// syncDatastore persists a datastore loaded from a document, or loads the
// persisted one when there is no document.
func syncDatastore(ctx context.Context, st *store.Store, ds timeline.Datastore, fromFile bool) (timeline.Datastore, error) {
	if fromFile {
		return ds, st.ReplaceDatastore(ctx, ds)
	}
	return st.LoadDatastore(ctx)
}

// logEvent is the conductor listener that turns events into log lines.
func logEvent(ev engine.Event) {
	attrs := []any{"kind", ev.Kind}
	if ev.DeviceID != "" {
		attrs = append(attrs, "device_id", ev.DeviceID)
	}

	switch ev.Kind {
	case engine.EventError:
		slog.Error(ev.Message, append(attrs, "error", ev.Err)...)
	case engine.EventWarning:
		slog.Warn(ev.Message, append(attrs, "error", ev.Err)...)
	case engine.EventInfo:
		slog.Info(ev.Message, attrs...)
	case engine.EventTimelineCallback:
		if ev.Callback == nil {
			return
		}
		cb := ev.Callback
		slog.Info("timeline callback", append(attrs,
			"callback", cb.Callback, "edge", cb.Edge, "instance_id", cb.InstanceID, "time", cb.Time)...)
	case engine.EventDeviceStatus:
		if ev.Status == nil {
			return
		}
		slog.Info("device status", append(attrs, "status", ev.Status.Code, "messages", ev.Status.Messages)...)
	case engine.EventStatReport:
		if ev.Stats == nil {
			return
		}
		s := ev.Stats
		slog.Debug("resolve cycle", append(attrs,
			"seq", s.Seq, "reason", s.Reason, "resolve_time", s.ResolveTime,
			"total_ms", s.TotalDuration, "cache_hit", s.CacheHit)...)
	case engine.EventCommandReport:
		if ev.Command == nil {
			return
		}
		cmd := ev.Command
		slog.Debug("command", append(attrs, "layer", cmd.Layer, "type", cmd.Type, "context", cmd.Context)...)
	default:
		slog.Debug(string(ev.Kind), append(attrs, "message", ev.Message)...)
	}
}
