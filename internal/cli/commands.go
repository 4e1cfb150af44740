package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vk/flowgrid/internal/app"
	"github.com/vk/flowgrid/internal/graph"
	"github.com/vk/flowgrid/internal/hclimport"
	"github.com/vk/flowgrid/internal/httpapi"
	"github.com/vk/flowgrid/internal/kvstore"
	"github.com/vk/flowgrid/internal/kvstore/memory"
	"github.com/vk/flowgrid/internal/model"
)

// closeApp releases the application and folds a close failure into err.
func closeApp(ctx context.Context, a *app.App, err *error) {
	if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && *err == nil {
		*err = cerr
	}
}

func (r *root) newRunCommand() *cobra.Command {
	var (
		file    string
		data    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run [workflow-id]",
		Short: "Run a workflow and print its execution log.",
		Long: `Run a stored workflow, or with --file an HCL workflow file that is loaded
into a throwaway in-memory store. The command waits for the run to finish and
exits non-zero if the run failed or was stopped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			trigger, err := parseTrigger(data)
			if err != nil {
				return err
			}
			if file == "" && len(args) == 0 {
				return usageError("a workflow id or --file is required")
			}

			var extra []app.Option
			if file != "" {
				extra = append(extra, app.WithBackend(kvstore.NewCollection(memory.New(), "")))
			}
			a, err := r.openApp(cmd, extra...)
			if err != nil {
				return err
			}
			defer closeApp(cmd.Context(), a, &err)

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			workflowID := ""
			if len(args) == 1 {
				workflowID = args[0]
			}
			if file != "" {
				imported, err := a.Import(ctx, file)
				if err != nil {
					return err
				}
				if workflowID == "" {
					if len(imported) != 1 {
						return usageError("%s defines %d workflows; name the one to run", file, len(imported))
					}
					workflowID = imported[0].ID
				}
			}

			runID, err := a.Run(ctx, workflowID, trigger)
			if err != nil {
				return err
			}
			state, err := a.Wait(ctx, runID)
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				_ = a.Stop(context.WithoutCancel(ctx), runID)
				state, err = a.Wait(context.WithoutCancel(ctx), runID)
			}
			if err != nil {
				return err
			}

			printRun(cmd.OutOrStdout(), state)
			if state.Status != model.RunCompleted {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("run %s %s: %s", state.ID, state.Status, state.Error)}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to an HCL workflow file or directory to run without storing it.")
	cmd.Flags().StringVar(&data, "data", "", "Trigger data as a JSON object.")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop the run after this duration (0 waits forever).")
	return cmd
}

func (r *root) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := r.openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd.Context(), a, &err)

			addr := r.v.GetString("http.addr")
			return httpapi.NewServer(a).Serve(a.Context(cmd.Context()), addr)
		},
	}
	cmd.Flags().String("addr", ":8080", "Address the HTTP API listens on.")
	if err := r.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
	return cmd
}

func (r *root) newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Import HCL workflow files into the store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := r.openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd.Context(), a, &err)

			imported, err := a.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, wf := range imported {
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s)\n", wf.ID, wf.Name)
			}
			return nil
		},
	}
}

func (r *root) newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Check HCL workflow files without storing them.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := r.openApp(cmd, app.WithBackend(kvstore.NewCollection(memory.New(), "")))
			if err != nil {
				return err
			}
			defer closeApp(cmd.Context(), a, &err)

			wfs, err := hclimport.Load(a.Context(cmd.Context()), args[0])
			if err != nil {
				return err
			}
			var problems []error
			for _, wf := range wfs {
				if err := graph.New(wf, a.Registry()).Validate(); err != nil {
					problems = append(problems, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", wf.Name)
			}
			if len(problems) > 0 {
				return &ExitError{Code: ExitFailure, Message: errors.Join(problems...).Error()}
			}
			return nil
		},
	}
}

func (r *root) newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored workflows.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := r.openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd.Context(), a, &err)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tENABLED\tNODES")
			for _, wf := range a.Store().List() {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\n", wf.ID, wf.Name, wf.Enabled, len(wf.Nodes))
			}
			return tw.Flush()
		},
	}
}

func parseTrigger(data string) (map[string]any, error) {
	if data == "" {
		return nil, nil
	}
	var trigger map[string]any
	if err := json.Unmarshal([]byte(data), &trigger); err != nil {
		return nil, usageError("invalid --data: %v", err)
	}
	return trigger, nil
}

// printRun writes the execution log followed by a summary line.
func printRun(w io.Writer, state model.RunState) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range state.Log {
		detail := ""
		switch {
		case e.Error != "":
			detail = e.Error
		case e.Result != nil && e.Result.Output != "":
			detail = "-> " + e.Result.Output
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.NodeID, e.NodeType, e.Phase, detail)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "Run %s %s in %s\n", state.ID, state.Status, state.Duration().Round(time.Millisecond))
}
