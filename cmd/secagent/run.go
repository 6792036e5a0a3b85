package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/KEPSOAR/DER-SecAgent/internal/app/dto"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/pkg/soar"
)

type runFlags struct {
	scriptChanged bool
	maxSteps      int
	timeout       time.Duration
}

func (a *app) runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <incident-id> <script|report> [zero|few|cot|tot]",
		Short: "Run one incident through the script or report pipeline",
		Long: `Run loads the incident and runs the selected pipeline.

In script mode the incident ID names a detection log row and the optional
third argument selects the prompting strategy (default zero). In report
mode it names a history row holding the executed script.`,
		Example: `  secagent run 42 script few
  secagent run 7 report --script-changed`,
		Args: usageArgs(cobra.RangeArgs(2, 3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseRunArgs(args)
			if err != nil {
				return err
			}
			req.IsScriptChanged = f.scriptChanged
			req.Config = dto.ExecutionConfig{MaxSteps: f.maxSteps, Timeout: f.timeout}

			return a.withRuntime(cmd, func(rt *soar.Runtime) error {
				resp, err := rt.Run(cmd.Context(), req)
				if resp != nil {
					if perr := a.printResponse(cmd.OutOrStdout(), resp); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&f.scriptChanged, "script-changed", false, "the operator edited the script before executing it (report mode)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "step budget (default MAX_STEPS)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "abort the execution after this long")
	return cmd
}

// parseRunArgs checks the selectors before anything is loaded. Unknown
// values are errors, never defaults.
func parseRunArgs(args []string) (*dto.ExecutionRequest, error) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return nil, &usageError{fmt.Errorf("incident id must be a positive integer, got %q", args[0])}
	}
	mode, err := incident.ParseOperationMode(args[1])
	if err != nil {
		return nil, err
	}
	req := &dto.ExecutionRequest{IncidentID: id, Mode: string(mode)}
	if len(args) == 3 {
		if mode != incident.ModeScript {
			return nil, &usageError{fmt.Errorf("prompting strategy %q only applies to script mode", args[2])}
		}
		eng, err := incident.ParseScriptEngineering(args[2])
		if err != nil {
			return nil, err
		}
		req.Engineering = string(eng)
	}
	return req, nil
}

func (a *app) printResponse(w io.Writer, resp *dto.ExecutionResponse) error {
	if a.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintf(w, "execution %s %s in %s (%d steps)\n",
		resp.ExecutionID, resp.Status, resp.Duration.Round(time.Millisecond), len(resp.Steps))
	if resp.Status != dto.ExecutionStatusCompleted {
		return nil
	}
	if script, ok := resp.Output[incident.FieldScript].(string); ok && script != "" {
		fmt.Fprintf(w, "\nscript:\n%s\n", script)
	}
	if report, ok := resp.Output[incident.FieldReport].(string); ok && report != "" {
		fmt.Fprintf(w, "\nreport:\n%s\n", report)
	}
	if resp.ReportID != 0 {
		fmt.Fprintf(w, "\nreport %d saved\n", resp.ReportID)
	}
	if caution, ok := resp.Output[incident.FieldCaution].(bool); ok {
		fmt.Fprintf(w, "\ncaution: %t\n", caution)
	}
	return nil
}
