package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blockstep/blockstep/internal/project"
	"github.com/blockstep/blockstep/internal/sim"
	"github.com/blockstep/blockstep/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <project-dir> | <model.yaml> <parameters.yaml>",
		Short: "Simulate a project",
		Long: `Load a project and run it to its horizon.

The project is a directory holding model.yaml and parameters.yaml, or
the two files named explicitly. The logged signals are recorded every
tick. With --db the run is saved to a SQLite results database,
creating the file if needed, and the run ID is printed.

Example:
  blockstep run ./myproject
  blockstep run model.yaml parameters.yaml --db results.db --verbose`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite results database")

	return cmd
}

// runSummary is the data payload of a completed run.
type runSummary struct {
	Model string             `json:"model"`
	Ticks int                `json:"ticks"`
	RunID string             `json:"run_id,omitempty"`
	Final map[string]float64 `json:"final,omitempty"`
}

func (s runSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "model '%s' ran %d ticks", s.Model, s.Ticks)
	if s.RunID != "" {
		fmt.Fprintf(&b, ", saved as run %s", s.RunID)
	}
	for _, path := range sortedKeys(s.Final) {
		fmt.Fprintf(&b, "\n  %s = %v", path, s.Final[path])
	}
	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runSimulation(opts *RunOptions, cmd *cobra.Command, args []string) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	modelPath, paramsPath, err := resolveProjectArgs(args)
	if err != nil {
		_ = out.Error(err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load project", err)
	}

	slog.Debug("loading project", "model", modelPath, "parameters", paramsPath)
	p, err := project.Load(modelPath, paramsPath)
	if err != nil {
		_ = out.Error(err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load project", err)
	}

	s, err := sim.New(p.Model, p.Config)
	if err != nil {
		_ = out.Error(err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build simulation", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("running simulation", "model", p.Model.Name(),
		"dt", p.Config.DT, "horizon", p.Config.Horizon)
	res, err := s.Run(ctx)
	if err != nil {
		_ = out.Error(err.Error(), nil)
		return WrapExitError(ExitFailure, "simulation failed", err)
	}
	slog.Info("simulation finished", "ticks", res.Len())

	summary := runSummary{
		Model: p.Model.Name(),
		Ticks: res.Len(),
		Final: finalScalars(res),
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = out.Error(err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		id, err := st.SaveResult(ctx, store.RunMeta{
			Model:   p.Model.Name(),
			DT:      p.Config.DT,
			T0:      p.Config.T0,
			Horizon: p.Config.Horizon,
		}, res)
		if err != nil {
			_ = out.Error(err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to save run", err)
		}
		summary.RunID = id
	}

	return out.Success(summary)
}

// finalScalars collects the last sample of every scalar logged path.
// Vector paths are skipped; the full series lives in the database.
func finalScalars(res *sim.Result) map[string]float64 {
	if res.Len() == 0 {
		return nil
	}
	final := make(map[string]float64)
	for _, path := range res.Paths() {
		vals, err := res.Scalars(path)
		if err != nil || len(vals) == 0 {
			continue
		}
		final[path] = vals[len(vals)-1]
	}
	if len(final) == 0 {
		return nil
	}
	return final
}
