package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KEPSOAR/DER-SecAgent/pkg/soar"
	"github.com/KEPSOAR/DER-SecAgent/pkg/validation"
)

func (a *app) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the response history used as prompt context",
	}
	cmd.AddCommand(a.historySaveCmd())
	return cmd
}

func (a *app) historySaveCmd() *cobra.Command {
	var req validation.HistoryRequest
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Record the script an operator executed for a detection log",
		Long: `Save copies the detection log row into the history table together with
the script the agent proposed, the script actually executed and the
reason for any change. Later few-shot, chain-of-thought and
tree-of-thought prompts for the same attack type draw on these rows.`,
		Example: `  secagent history save --log-id 42 \
    --agent-script "iptables -A INPUT -s 203.0.113.7 -j DROP" \
    --executed-script "iptables -A INPUT -s 203.0.113.7 -p tcp --dport 502 -j DROP" \
    --reason "restrict to modbus port"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.ExecutedScript == "" {
				req.ExecutedScript = req.AgentScript
			}
			if err := validation.ValidateStruct(&req); err != nil {
				return err
			}
			return a.withRuntime(cmd, func(rt *soar.Runtime) error {
				id, err := rt.SaveHistory(cmd.Context(), soar.ApprovedResponse{
					LogID:          req.LogID,
					AgentScript:    req.AgentScript,
					ExecutedScript: req.ExecutedScript,
					ChangedReason:  req.ChangedReason,
					Caution:        req.Caution,
				})
				if err != nil {
					return err
				}
				if a.jsonOut {
					fmt.Fprintf(cmd.OutOrStdout(), "{\"history_id\": %d}\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "history %d saved for log %d\n", id, req.LogID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&req.LogID, "log-id", 0, "detection log ID")
	cmd.Flags().StringVar(&req.AgentScript, "agent-script", "", "script proposed by the agent")
	cmd.Flags().StringVar(&req.ExecutedScript, "executed-script", "", "script the operator executed (default: the agent script)")
	cmd.Flags().StringVar(&req.ChangedReason, "reason", "", "why the executed script differs")
	cmd.Flags().BoolVar(&req.Caution, "caution", false, "the script made irreversible changes")
	return cmd
}
