package validation

import (
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/app/dto"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
)

// RunRequest is the body of a run call. The incident ID comes from the
// path.
type RunRequest struct {
	Mode              string `json:"mode" validate:"required,operation_mode"`
	ScriptEngineering string `json:"script_engineering,omitempty" validate:"omitempty,script_engineering"`
	IsScriptChanged   bool   `json:"is_script_changed,omitempty"`
	MaxSteps          int    `json:"max_steps,omitempty" validate:"gte=0,lte=100000"`
	TimeoutSeconds    int    `json:"timeout_seconds,omitempty" validate:"gte=0,lte=3600"`
}

// Validate rejects options that only make sense in the other mode.
func (r *RunRequest) Validate() error {
	if incident.OperationMode(r.Mode) == incident.ModeReport && r.ScriptEngineering != "" {
		return ValidationErrors{{
			Field:   "script_engineering",
			Value:   r.ScriptEngineering,
			Message: "only applies to script mode",
		}}
	}
	return nil
}

// ExecutionRequest converts r into the executor's request for incidentID.
func (r *RunRequest) ExecutionRequest(incidentID int64) *dto.ExecutionRequest {
	return &dto.ExecutionRequest{
		IncidentID:      incidentID,
		Mode:            r.Mode,
		Engineering:     r.ScriptEngineering,
		IsScriptChanged: r.IsScriptChanged,
		Config: dto.ExecutionConfig{
			MaxSteps: r.MaxSteps,
			Timeout:  time.Duration(r.TimeoutSeconds) * time.Second,
		},
	}
}

// HistoryRequest records an operator's decision on a generated script.
type HistoryRequest struct {
	LogID          int64  `json:"log_id" validate:"required,gt=0"`
	AgentScript    string `json:"agent_script" validate:"required"`
	ExecutedScript string `json:"executed_script" validate:"required"`
	ChangedReason  string `json:"changed_reason,omitempty" validate:"max=2000"`
	Caution        bool   `json:"caution"`
}

// Validate requires a reason whenever the operator changed the script.
func (h *HistoryRequest) Validate() error {
	if h.ExecutedScript != h.AgentScript && h.ChangedReason == "" {
		return ValidationErrors{{
			Field:   "changed_reason",
			Value:   h.ChangedReason,
			Message: "required when executed_script differs from agent_script",
		}}
	}
	return nil
}
