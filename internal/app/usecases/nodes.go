package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
	imetrics "github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/metrics"
)

// Node names of the pipelines.
const (
	NodeScriptGen    = "script_gen"
	NodeVerifyScript = "verify_script"
	NodeEvalCaution  = "eval_caution_level"
	NodeReportGen    = "report_gen"
	NodeVerifyReport = "verify_report"
	NodeScriptPath   = "script_path"
	NodeReportPath   = "report_path"
)

func requires(extra ...string) []string {
	return append(incident.IncidentFieldNames(), extra...)
}

// ScriptGenNode generates a remediation script with the strategy named by
// script_engineering. History is consulted for the strategies that use it;
// a failed lookup degrades to no history. A model failure is fatal.
func ScriptGenNode(model ModelInvoker, history HistoryLookup, historyLimit int) graph.Node {
	contract := graph.Contract{
		Requires: requires(incident.FieldScriptEngineering),
		Provides: []string{incident.FieldScript, incident.FieldChainOfThought},
	}
	return graph.NewNode(contract, func(ctx context.Context, s state.State) (state.Delta, error) {
		log := ctxlog.FromContext(ctx)
		eng := state.LookupOr(s, incident.FieldScriptEngineering, incident.ZeroShot)

		var historyText string
		if eng.UsesHistory() && history != nil && historyLimit > 0 {
			attack := state.LookupOr(s, incident.FieldAttackType, incident.AttackType(""))
			records, err := history.RecentHistory(ctx, attack, historyLimit)
			if err != nil {
				log.Warn("history lookup failed, continuing without history", "attack_type", attack, "error", err)
			} else {
				historyText = HistoryContext(records)
			}
		}

		prompt, err := ScriptPrompt(eng, s, historyText)
		if err != nil {
			return nil, err
		}
		prompt = withFeedback(prompt,
			state.LookupOr(s, incident.FieldScript, ""),
			state.LookupOr(s, incident.VerifyScript.FeedbackField(), ""))

		out, err := model.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("generate script: %w", err)
		}
		log.Info("script generated", "strategy", eng, "history", historyText != "")
		return state.Delta{
			incident.FieldScript:         strings.TrimSpace(out),
			incident.FieldChainOfThought: historyText,
		}, nil
	})
}

// CautionEvalNode classifies whether the script causes irreversible change.
// Its delta is the state narrowed to the caution schema plus the verdict.
// In script mode the result is also sent to the notifier; delivery failure
// is logged only.
func CautionEvalNode(model ModelInvoker, notifier Notifier) graph.Node {
	contract := graph.Contract{
		Requires: requires(incident.FieldScript),
		Provides: incident.CautionSchema.Required(),
		Emits:    incident.CautionSchema.Names(),
	}
	return graph.NewNode(contract, func(ctx context.Context, s state.State) (state.Delta, error) {
		script := state.LookupOr(s, incident.FieldScript, "")
		out, err := model.Generate(ctx, CautionPrompt(script))
		if err != nil {
			return nil, fmt.Errorf("evaluate caution: %w", err)
		}
		caution := strings.ToLower(strings.TrimSpace(out)) == "true"

		if state.LookupOr(s, incident.FieldMode, incident.OperationMode("")) == incident.ModeScript {
			notify(ctx, notifier, Notification{
				Kind:    NotifyScript,
				LogID:   state.LookupOr(s, incident.FieldID, int64(0)),
				Script:  script,
				Caution: caution,
			})
		}

		delta := incident.CautionSchema.Project(s)
		delta[incident.FieldCaution] = caution
		return delta, nil
	})
}

// ReportGenNode writes the incident report. The report path always treats
// the script as requiring caution. A model failure is fatal.
func ReportGenNode(model ModelInvoker, notifier Notifier) graph.Node {
	contract := graph.Contract{
		Requires: requires(incident.FieldScript),
		Provides: []string{incident.FieldReport, incident.FieldCaution},
	}
	return graph.NewNode(contract, func(ctx context.Context, s state.State) (state.Delta, error) {
		prompt := withFeedback(ReportPrompt(s),
			state.LookupOr(s, incident.FieldReport, ""),
			state.LookupOr(s, incident.VerifyReport.FeedbackField(), ""))

		out, err := model.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("generate report: %w", err)
		}
		report := strings.TrimSpace(out)

		notify(ctx, notifier, Notification{
			Kind:    NotifyReport,
			LogID:   state.LookupOr(s, incident.FieldID, int64(0)),
			Script:  state.LookupOr(s, incident.FieldScript, ""),
			Report:  report,
			Caution: true,
		})
		return state.Delta{
			incident.FieldReport:  report,
			incident.FieldCaution: true,
		}, nil
	})
}

func notify(ctx context.Context, n Notifier, msg Notification) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		imetrics.IncWebhookFailure(string(msg.Kind))
		ctxlog.FromContext(ctx).Warn("notification failed", "kind", msg.Kind, "log_id", msg.LogID, "error", err)
	}
}
