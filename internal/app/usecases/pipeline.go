package usecases

import (
	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

// Graph names.
const (
	GraphScript = "script_pipeline"
	GraphReport = "report_pipeline"
	GraphSOAR   = "soar"
)

// Report pipeline START labels.
const (
	LabelEval   = "eval"
	LabelDirect = "direct"
)

// Collaborators are the external services the pipeline nodes call. Model is
// required. A nil Verifier selects a ModelVerifier over Model; a nil
// History or Notifier disables history lookup or notifications.
type Collaborators struct {
	Model    ModelInvoker
	Verifier Verifier
	History  HistoryLookup
	Notifier Notifier
}

// PipelineConfig tunes the pipelines.
type PipelineConfig struct {
	MaxVerifyRetries int
	HistoryLimit     int
}

// DefaultPipelineConfig returns the design defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{MaxVerifyRetries: DefaultMaxVerifyRetries, HistoryLimit: 5}
}

func (c Collaborators) resolve() (Collaborators, error) {
	if c.Model == nil {
		return c, graph.Configurationf("model invoker is required")
	}
	if c.Verifier == nil {
		c.Verifier = NewModelVerifier(c.Model)
	}
	return c, nil
}

func (cfg PipelineConfig) validate() error {
	if cfg.MaxVerifyRetries < 1 {
		return graph.Configurationf("max verify retries must be >= 1, got %d", cfg.MaxVerifyRetries)
	}
	if cfg.HistoryLimit < 0 {
		return graph.Configurationf("history limit must be >= 0, got %d", cfg.HistoryLimit)
	}
	return nil
}

// BuildScriptPipeline compiles
//
//	START -> script_gen -> verify_script -(ok|giveup)-> eval_caution_level -> END
//	                  ^------(retry)------'
//
// Its output is the caution schema.
func BuildScriptPipeline(c Collaborators, cfg PipelineConfig) (*graph.CompiledGraph, error) {
	c, err := c.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	b := graph.NewBuilder(GraphScript, graph.Schemas{
		State:  incident.WorkingSchema,
		Input:  incident.InputSchema,
		Output: incident.CautionSchema,
	})
	_ = b.AddNode(NodeScriptGen, ScriptGenNode(c.Model, c.History, cfg.HistoryLimit))
	_ = b.AddNode(NodeVerifyScript, VerifyNode(incident.VerifyScript, c.Verifier, cfg.MaxVerifyRetries))
	_ = b.AddNode(NodeEvalCaution, CautionEvalNode(c.Model, c.Notifier))

	_ = b.AddEdge(graph.Start, NodeScriptGen)
	_ = b.AddEdge(NodeScriptGen, NodeVerifyScript)
	_ = b.AddConditionalEdges(NodeVerifyScript, VerifyRouter(incident.VerifyScript, cfg.MaxVerifyRetries), map[string]string{
		LabelOK:     NodeEvalCaution,
		LabelRetry:  NodeScriptGen,
		LabelGiveUp: NodeEvalCaution,
	})
	_ = b.AddEdge(NodeEvalCaution, graph.End)
	return b.Compile()
}

// ScriptChangedRouter sends a changed script through caution evaluation
// before the report is written.
func ScriptChangedRouter() graph.Router {
	return graph.NewRouter([]string{LabelEval, LabelDirect}, func(s state.State) string {
		if state.LookupOr(s, incident.FieldIsScriptChanged, false) {
			return LabelEval
		}
		return LabelDirect
	})
}

// BuildReportPipeline compiles
//
//	START -(eval)-> eval_caution_level -> report_gen
//	START -(direct)-> report_gen
//	report_gen -> verify_report -(ok|giveup)-> END, -(retry)-> report_gen
//
// Its output is the report schema.
func BuildReportPipeline(c Collaborators, cfg PipelineConfig) (*graph.CompiledGraph, error) {
	c, err := c.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	b := graph.NewBuilder(GraphReport, graph.Schemas{
		State:  incident.WorkingSchema,
		Input:  incident.InputSchema,
		Output: incident.ReportSchema,
	})
	_ = b.AddNode(NodeEvalCaution, CautionEvalNode(c.Model, c.Notifier))
	_ = b.AddNode(NodeReportGen, ReportGenNode(c.Model, c.Notifier))
	_ = b.AddNode(NodeVerifyReport, VerifyNode(incident.VerifyReport, c.Verifier, cfg.MaxVerifyRetries))

	_ = b.AddConditionalEdges(graph.Start, ScriptChangedRouter(), map[string]string{
		LabelEval:   NodeEvalCaution,
		LabelDirect: NodeReportGen,
	})
	_ = b.AddEdge(NodeEvalCaution, NodeReportGen)
	_ = b.AddEdge(NodeReportGen, NodeVerifyReport)
	_ = b.AddConditionalEdges(NodeVerifyReport, VerifyRouter(incident.VerifyReport, cfg.MaxVerifyRetries), map[string]string{
		LabelOK:     graph.End,
		LabelRetry:  NodeReportGen,
		LabelGiveUp: graph.End,
	})
	return b.Compile()
}

// ModeRouter dispatches on the operation mode.
func ModeRouter() graph.Router {
	labels := []string{string(incident.ModeScript), string(incident.ModeReport)}
	return graph.NewRouter(labels, func(s state.State) string {
		return string(state.LookupOr(s, incident.FieldMode, incident.OperationMode("")))
	})
}

// BuildSOARGraph compiles the mode dispatch graph with both pipelines as
// sub-graph nodes.
func BuildSOARGraph(c Collaborators, cfg PipelineConfig) (*graph.CompiledGraph, error) {
	scriptPath, err := BuildScriptPipeline(c, cfg)
	if err != nil {
		return nil, err
	}
	reportPath, err := BuildReportPipeline(c, cfg)
	if err != nil {
		return nil, err
	}

	b := graph.NewBuilder(GraphSOAR, graph.Schemas{
		State:  incident.WorkingSchema,
		Input:  incident.InputSchema,
		Output: incident.ResultSchema,
	})
	_ = b.AddNode(NodeScriptPath, scriptPath)
	_ = b.AddNode(NodeReportPath, reportPath)
	_ = b.AddConditionalEdges(graph.Start, ModeRouter(), map[string]string{
		string(incident.ModeScript): NodeScriptPath,
		string(incident.ModeReport): NodeReportPath,
	})
	_ = b.AddEdge(NodeScriptPath, graph.End)
	_ = b.AddEdge(NodeReportPath, graph.End)
	return b.Compile()
}
