package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KEPSOAR/DER-SecAgent/internal/app/dto"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/snapshot"
)

// SnapshotService stores the terminal state of finished executions.
// It implements usecases.SnapshotRecorder.
type SnapshotService struct {
	saver snapshot.Saver
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(saver snapshot.Saver) *SnapshotService {
	return &SnapshotService{
		saver: saver,
	}
}

// Record saves a snapshot of resp and returns its ID. Completed executions
// store their projected output, failed and stopped ones the last merged
// state.
func (s *SnapshotService) Record(ctx context.Context, resp *dto.ExecutionResponse) (string, error) {
	snap := &snapshot.Snapshot{
		ID:          uuid.NewString(),
		ExecutionID: resp.ExecutionID,
		IncidentID:  resp.IncidentID,
		Mode:        string(resp.Mode),
		Status:      snapshot.StatusCompleted,
		State:       resp.Output,
		Steps:       len(resp.Steps),
		Timestamp:   time.Now(),
	}
	if resp.Status != dto.ExecutionStatusCompleted {
		snap.Status = snapshot.StatusFailed
		snap.ErrorKind = string(resp.ErrorKind)
		snap.Error = resp.Error
		snap.State = resp.LastState
	}
	if snap.State == nil {
		snap.State = map[string]any{}
	}
	for _, step := range resp.Steps {
		snap.Visited = append(snap.Visited, step.Graph+"/"+step.NodeID)
	}

	if err := s.saver.Save(ctx, snap); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return snap.ID, nil
}

// Load returns one snapshot.
func (s *SnapshotService) Load(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	snap, err := s.saver.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

// ListForIncident returns the most recent snapshots of an incident, newest
// first.
func (s *SnapshotService) ListForIncident(ctx context.Context, incidentID int64, limit int) ([]*snapshot.Snapshot, error) {
	filter := snapshot.Filter{
		IncidentID: incidentID,
		Limit:      limit,
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	snaps, err := s.saver.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snaps, nil
}
