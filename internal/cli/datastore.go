package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/config"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/ir"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/store"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// DatastoreOptions holds flags shared by the datastore subcommands.
type DatastoreOptions struct {
	*RootOptions
	Database string
	Modified int64

	// Now returns the current time in ms (for testing).
	Now func() int64
}

// DatastoreListing is the output of datastore list.
type DatastoreListing struct {
	Entries timeline.Datastore `json:"entries"`
}

// NewDatastoreCommand creates the datastore command and its subcommands.
func NewDatastoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DatastoreOptions{
		RootOptions: rootOpts,
		Now:         func() int64 { return time.Now().UnixMilli() },
	}

	cmd := &cobra.Command{
		Use:   "datastore",
		Short: "Inspect and edit the persisted datastore",
		Long: `Inspect and edit the datastore persisted by "tsr run --db".

Values are parsed as YAML, so plain words are strings and {a: 1} is a map.
A running conductor only reads the database at startup.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List datastore entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				ds, err := st.LoadDatastore(ctx)
				if err != nil {
					return f.fail(ExitCommandError, ErrCodeDatabase, "failed to load datastore", err)
				}
				return f.Success(&DatastoreListing{Entries: ds})
			})
		},
	}

	set := &cobra.Command{
		Use:           "set <key> <value>",
		Short:         "Set a datastore entry",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				value, err := parseValue(args[1])
				if err != nil {
					return f.fail(ExitCommandError, ErrCodeArgs, "invalid value", err)
				}
				modified := opts.Modified
				if modified == 0 {
					modified = opts.Now()
				}
				entry := timeline.DatastoreEntry{Value: value, Modified: modified}
				if err := st.PutDatastoreEntry(ctx, args[0], entry); err != nil {
					return f.fail(ExitCommandError, ErrCodeDatabase, "failed to write entry", err)
				}
				return f.Success(&DatastoreListing{Entries: timeline.Datastore{args[0]: entry}})
			})
		},
	}
	set.Flags().Int64Var(&opts.Modified, "modified", 0, "modification time in ms (default now)")

	del := &cobra.Command{
		Use:           "delete <key>",
		Short:         "Delete a datastore entry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				if err := st.DeleteDatastoreKey(ctx, args[0]); err != nil {
					return f.fail(ExitCommandError, ErrCodeDatabase, "failed to delete entry", err)
				}
				return f.Success(fmt.Sprintf("deleted %s", args[0]))
			})
		},
	}

	imp := &cobra.Command{
		Use:           "import <datastore.yaml>",
		Short:         "Replace the datastore with a document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				ds, err := config.LoadDatastore(args[0])
				if err != nil {
					return configFailure(f, err)
				}
				if err := st.ReplaceDatastore(ctx, ds); err != nil {
					return f.fail(ExitCommandError, ErrCodeDatabase, "failed to replace datastore", err)
				}
				return f.Success(&DatastoreListing{Entries: ds})
			})
		},
	}

	cmd.AddCommand(list, set, del, imp)
	return cmd
}

func withStore(opts *DatastoreOptions, cmd *cobra.Command, fn func(ctx context.Context, f *OutputFormatter, st *store.Store) error) error {
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

	return fn(ctx, f, st)
}

// parseValue reads a YAML value with integers normalized to int64.
func parseValue(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return timeline.Clone(v)
}

// WriteText implements textWriter.
func (l *DatastoreListing) WriteText(w io.Writer) error {
	if len(l.Entries) == 0 {
		_, err := fmt.Fprintln(w, "(empty)")
		return err
	}
	for _, key := range sortedKeys(l.Entries) {
		e := l.Entries[key]
		value, err := ir.MarshalCanonical(e.Value)
		if err != nil {
			return fmt.Errorf("entry %s: %w", key, err)
		}
		if _, err := fmt.Fprintf(w, "%s = %s (modified %d)\n", key, value, e.Modified); err != nil {
			return err
		}
	}
	return nil
}
