package dto

import (
	"fmt"
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
)

// ExecutionRequest asks for one incident to be run through the pipelines.
// Mode and Engineering hold the raw selectors; Validate parses them.
type ExecutionRequest struct {
	IncidentID      int64           `json:"incident_id"`
	Mode            string          `json:"mode"`
	Engineering     string          `json:"script_engineering,omitempty"`
	IsScriptChanged bool            `json:"is_script_changed,omitempty"`
	Config          ExecutionConfig `json:"config"`
}

// ExecutionConfig contains configuration for one execution
type ExecutionConfig struct {
	MaxSteps int           `json:"max_steps"`         // Step budget of the whole execution
	Timeout  time.Duration `json:"timeout,omitempty"` // Zero means no deadline
}

// ExecutionResponse is the outcome of one execution
type ExecutionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	IncidentID  int64                  `json:"incident_id"`
	Mode        incident.OperationMode `json:"mode"`
	Status      ExecutionStatus        `json:"status"`
	Output      map[string]any         `json:"output,omitempty"`
	Steps       []StepResult           `json:"steps"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     time.Time              `json:"end_time"`
	Duration    time.Duration          `json:"duration"`
	ErrorKind   graph.Kind             `json:"error_kind,omitempty"`
	Error       string                 `json:"error,omitempty"`
	// LastState is the last merged state of a failed execution.
	LastState map[string]any `json:"last_state,omitempty"`
	// ReportID is the stored report of a completed report execution.
	ReportID int64 `json:"report_id,omitempty"`
}

// ExecutionStatus represents the status of an execution
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
)

// StepResult represents a single node application
type StepResult struct {
	StepNumber int           `json:"step_number"`
	Graph      string        `json:"graph"`
	NodeID     string        `json:"node_id"`
	Keys       []string      `json:"keys,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// StepsFrom converts an engine trace.
func StepsFrom(steps []graph.Step) []StepResult {
	out := make([]StepResult, 0, len(steps))
	for _, s := range steps {
		out = append(out, StepResult{
			StepNumber: s.Number,
			Graph:      s.Graph,
			NodeID:     s.Node,
			Keys:       s.Keys,
			Duration:   s.Duration,
		})
	}
	return out
}

// Visited returns the node IDs applied inside graphName, in order.
func (r *ExecutionResponse) Visited(graphName string) []string {
	var out []string
	for _, s := range r.Steps {
		if s.Graph == graphName {
			out = append(out, s.NodeID)
		}
	}
	return out
}

// Validate parses the selectors of the request. Unknown modes or strategies
// are configuration errors; an empty strategy means zero-shot.
func (req *ExecutionRequest) Validate() (incident.OperationMode, incident.ScriptEngineering, error) {
	if req.IncidentID <= 0 {
		return "", "", ErrMissingIncidentID
	}
	mode, err := incident.ParseOperationMode(req.Mode)
	if err != nil {
		return "", "", err
	}
	eng, err := incident.ParseScriptEngineering(req.Engineering)
	if err != nil {
		return "", "", err
	}
	if req.Config.MaxSteps < 0 {
		return "", "", fmt.Errorf("%w: max steps %d", ErrInvalidConfig, req.Config.MaxSteps)
	}
	if req.Config.MaxSteps == 0 {
		req.Config.MaxSteps = graph.DefaultMaxSteps
	}
	return mode, eng, nil
}
