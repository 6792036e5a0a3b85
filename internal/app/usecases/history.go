package usecases

import (
	"context"
	"fmt"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
)

// ApprovedResponse is an operator's decision on a generated script.
type ApprovedResponse struct {
	LogID          int64
	AgentScript    string
	ExecutedScript string
	ChangedReason  string
	Caution        bool
}

// HistoryRecorder appends operator-approved responses to the history that
// later prompts draw on.
type HistoryRecorder struct {
	repo IncidentRepository
}

// NewHistoryRecorder creates a HistoryRecorder.
func NewHistoryRecorder(repo IncidentRepository) *HistoryRecorder {
	return &HistoryRecorder{repo: repo}
}

// Save copies the log row, attaches the response and returns the new
// history ID. The history row is written even if a later notification
// about it fails; there is no rollback across side effects.
func (h *HistoryRecorder) Save(ctx context.Context, r ApprovedResponse) (int64, error) {
	rec, err := h.repo.FetchLog(ctx, r.LogID)
	if err != nil {
		return 0, fmt.Errorf("fetch log %d: %w", r.LogID, err)
	}
	id, err := h.repo.InsertHistory(ctx, &incident.HistoryRecord{
		Record:         *rec,
		GivenScript:    r.AgentScript,
		ExecutedScript: r.ExecutedScript,
		ChangedReason:  r.ChangedReason,
		CautionLevel:   r.Caution,
	})
	if err != nil {
		return 0, fmt.Errorf("insert history for log %d: %w", r.LogID, err)
	}
	ctxlog.FromContext(ctx).Info("history saved", "log_id", r.LogID, "history_id", id)
	return id, nil
}
