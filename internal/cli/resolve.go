package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/config"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/engine"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/ir"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/resolver"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Timeline  string
	Datastore string
	At        int64
	Limit     int64
}

// ResolveResult is the outcome of a one-shot resolve.
type ResolveResult struct {
	Time       int64                           `json:"time"`
	Passes     int                             `json:"passes"`
	Converged  bool                            `json:"converged"`
	Fixed      []resolver.FixedObject          `json:"fixed,omitempty"`
	Devices    map[string]timeline.DeviceState `json:"devices"`
	Types      map[string]timeline.DeviceType  `json:"types"`
	Unmapped   []string                        `json:"unmapped,omitempty"`
	NextEvents []timeline.NextEvent            `json:"nextEvents,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <config.cue>",
		Short: "Resolve a timeline once and print the per-device states",
		Long: `Resolve a timeline at one point in time, exactly as a conductor would:
"now" starts are fixed to --at, the timeline is resolved over the window
[at, at+limit], the state is projected onto the configured devices and
datastore references are filled in.

Example:
  tsr resolve studio.cue --timeline rundown.yaml --at 1000
  tsr resolve studio.cue --timeline rundown.yaml --datastore ds.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Timeline, "timeline", "", "timeline document (required)")
	cmd.Flags().StringVar(&opts.Datastore, "datastore", "", "datastore document")
	cmd.Flags().Int64Var(&opts.At, "at", 0, "time to resolve at, in ms")
	cmd.Flags().Int64Var(&opts.Limit, "limit", engine.DefaultResolveLimit, "length of the resolve window, in ms")
	_ = cmd.MarkFlagRequired("timeline")

	return cmd
}

func runResolve(opts *ResolveOptions, cfgPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	if opts.Limit < 0 {
		return f.fail(ExitCommandError, ErrCodeArgs, fmt.Sprintf("--limit must not be negative, got %d", opts.Limit), nil)
	}

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

	result, err := resolveOnce(in, ds, opts.At, opts.Limit)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeResolve, "resolve failed", err)
	}
	return f.Success(result)
}

// resolveOnce runs one resolve cycle without devices: now-fix, resolve,
// slice, project and fill.
func resolveOnce(in *inputs, ds timeline.Datastore, at, limit int64) (*ResolveResult, error) {
	tl, err := timeline.New(in.objects)
	if err != nil {
		return nil, err
	}

	res, err := resolver.NewNowFixer(resolver.Interval{}).Resolve(tl, at, limit, false)
	if err != nil {
		return nil, err
	}
	state := resolver.States(res.Resolved, at)

	types := in.cfg.DeviceTypes()
	buckets := engine.Project(state.Layers, in.cfg.Mappings, types)

	result := &ResolveResult{
		Time:       at,
		Passes:     res.Passes,
		Converged:  res.Converged,
		Fixed:      res.ObjectsFixed,
		Devices:    make(map[string]timeline.DeviceState, len(buckets)),
		Types:      types,
		NextEvents: state.NextEvents,
	}

	projected := make(map[string]bool)
	for id, layers := range buckets {
		filled, _ := engine.FillState(timeline.DeviceState{Time: at, Layers: layers}, ds)
		result.Devices[id] = filled
		for layer := range layers {
			projected[layer] = true
		}
	}
	for layer := range state.Layers {
		if !projected[layer] {
			result.Unmapped = append(result.Unmapped, layer)
		}
	}
	sort.Strings(result.Unmapped)

	return result, nil
}

// WriteText implements textWriter.
func (r *ResolveResult) WriteText(w io.Writer) error {
	status := "converged"
	if !r.Converged {
		status = "not converged"
	}
	fmt.Fprintf(w, "resolved at %d (%d pass(es), %s)\n", r.Time, r.Passes, status)

	if len(r.Fixed) > 0 {
		fmt.Fprintln(w, "fixed:")
		for _, fo := range r.Fixed {
			fmt.Fprintf(w, "  %s -> %d\n", fo.ID, fo.Time)
		}
	}

	for _, id := range sortedKeys(r.Devices) {
		fmt.Fprintf(w, "device %s (%s):\n", id, r.Types[id])
		layers := r.Devices[id].Layers
		if len(layers) == 0 {
			fmt.Fprintln(w, "  (empty)")
			continue
		}
		for _, layer := range sortedKeys(layers) {
			if err := writeLayer(w, layers[layer]); err != nil {
				return err
			}
		}
	}

	if len(r.Unmapped) > 0 {
		fmt.Fprintln(w, "unmapped layers:")
		for _, layer := range r.Unmapped {
			fmt.Fprintf(w, "  %s\n", layer)
		}
	}

	if len(r.NextEvents) > 0 {
		fmt.Fprintln(w, "next events:")
		for _, ev := range r.NextEvents {
			fmt.Fprintf(w, "  %d %s %s\n", ev.Time, ev.Type, ev.ObjectID)
		}
	}
	return nil
}

func writeLayer(w io.Writer, li timeline.LayerInstance) error {
	end := "-"
	if li.End != nil {
		end = fmt.Sprint(*li.End)
	}
	line := fmt.Sprintf("  %s: %s [%d, %s)", li.Layer, li.InstanceID, li.Start, end)
	if li.IsLookahead {
		line += " lookahead"
		if li.LookaheadForLayer != "" {
			line += " for " + li.LookaheadForLayer
		}
	}
	if len(li.Content) > 0 {
		content, err := ir.MarshalCanonical(map[string]any(li.Content))
		if err != nil {
			return fmt.Errorf("layer %s: %w", li.Layer, err)
		}
		line += " " + string(content)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
