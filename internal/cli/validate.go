package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/config"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// ValidationIssue is one configuration problem as reported by the CLI.
type ValidationIssue struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Devices  int               `json:"devices"`
	Mappings int               `json:"mappings"`
	Objects  int               `json:"objects"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Timeline  string
	Datastore string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Check a configuration without starting a conductor",
		Long: `Check a CUE configuration against the schema, and optionally a timeline
and datastore document against it.

Cross-reference checks: every mapping must name a configured device of the
same type, every device type must be known, and timeline object ids must be
present and unique.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Timeline, "timeline", "", "timeline document (YAML or JSON)")
	cmd.Flags().StringVar(&opts.Datastore, "datastore", "", "datastore document (YAML or JSON)")

	return cmd
}

func runValidate(opts *ValidateOptions, cfgPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	in, err := loadInputs(f, cfgPath, opts.Timeline)
	if err != nil {
		return err
	}
	if opts.Datastore != "" {
		if _, err := config.LoadDatastore(opts.Datastore); err != nil {
			return configFailure(f, err)
		}
	}

	return f.Success(ValidationResult{
		Valid:    true,
		Devices:  len(in.cfg.DeviceIDs()),
		Mappings: len(in.cfg.Mappings),
		Objects:  countObjects(in.objects),
	})
}

// WriteText implements textWriter.
func (r ValidationResult) WriteText(w io.Writer) error {
	if r.Valid {
		_, err := fmt.Fprintf(w, "✓ Configuration valid (%d device(s), %d mapping(s), %d object(s))\n",
			r.Devices, r.Mappings, r.Objects)
		return err
	}

	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, issue := range r.Errors {
		loc := issue.Path
		if issue.Line > 0 {
			loc = fmt.Sprintf("line %d %s", issue.Line, issue.Path)
		}
		if _, err := fmt.Fprintf(w, "  %s %s: %s\n", issue.Code, loc, issue.Message); err != nil {
			return err
		}
	}
	return nil
}

// inputs is what run, resolve and validate start from.
type inputs struct {
	cfg     *config.Config
	objects []timeline.Object
}

// loadInputs loads and cross-checks the configuration and, when a path is
// given, the timeline. Failures are reported through f.
func loadInputs(f *OutputFormatter, cfgPath, timelinePath string) (*inputs, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, configFailure(f, err)
	}
	in := &inputs{cfg: cfg}

	if timelinePath != "" {
		if in.objects, err = config.LoadTimeline(timelinePath); err != nil {
			return nil, configFailure(f, err)
		}
	}

	if errs := config.Validate(cfg, in.objects, device.DefaultFactories().Types()); len(errs) > 0 {
		return nil, outputValidationErrors(f, errs)
	}
	return in, nil
}

// configFailure reports an error from the config package. Unreadable files
// are command errors; everything else is a validation failure.
func configFailure(f *OutputFormatter, err error) error {
	var errs config.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return f.fail(ExitCommandError, ErrCodeGeneric, "cannot load input", err)
	}
	if errs[0].Code == config.ErrCodeRead {
		return f.fail(ExitCommandError, errs[0].Code, "cannot read input", err)
	}
	return outputValidationErrors(f, errs)
}

func outputValidationErrors(f *OutputFormatter, errs config.Errors) error {
	result := ValidationResult{Valid: false}
	for _, e := range errs {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    e.Code,
			Path:    e.Path,
			Message: e.Message,
			Line:    e.Line(),
		})
	}

	if f.Format == "json" {
		if err := f.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
	} else if err := result.WriteText(f.Writer); err != nil {
		return err
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func countObjects(objects []timeline.Object) int {
	n := 0
	for _, obj := range objects {
		n += 1 + countObjects(obj.Children) + countObjects(obj.Keyframes)
	}
	return n
}
