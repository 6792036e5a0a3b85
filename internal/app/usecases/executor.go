package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KEPSOAR/DER-SecAgent/internal/app/dto"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
	imetrics "github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/metrics"
	"github.com/KEPSOAR/DER-SecAgent/pkg/validation"
)

// IncidentExecutor loads an incident, runs it through the mode dispatch
// graph and reports the outcome. Executions are independent; each gets its
// own engine run and state.
type IncidentExecutor struct {
	graph     *graph.CompiledGraph
	repo      IncidentRepository
	snapshots SnapshotRecorder
	reports   ReportStore
	running   map[string]*runningExecution
	mu        sync.RWMutex
}

type runningExecution struct {
	resp   dto.ExecutionResponse
	cancel context.CancelFunc
}

// ExecutorOption configures an IncidentExecutor.
type ExecutorOption func(*IncidentExecutor)

// WithSnapshots stores every finished execution through rec.
func WithSnapshots(rec SnapshotRecorder) ExecutorOption {
	return func(e *IncidentExecutor) { e.snapshots = rec }
}

// WithReports stores the report of every completed report execution.
func WithReports(store ReportStore) ExecutorOption {
	return func(e *IncidentExecutor) { e.reports = store }
}

// NewIncidentExecutor creates an executor over a compiled mode dispatch
// graph.
func NewIncidentExecutor(g *graph.CompiledGraph, repo IncidentRepository, opts ...ExecutorOption) *IncidentExecutor {
	e := &IncidentExecutor{
		graph:   g,
		repo:    repo,
		running: make(map[string]*runningExecution),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one incident. Invalid selectors fail before anything is
// loaded. On a run failure the response is returned together with the
// error and carries the last merged state.
func (e *IncidentExecutor) Execute(ctx context.Context, req *dto.ExecutionRequest) (*dto.ExecutionResponse, error) {
	mode, eng, err := req.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	input, err := e.LoadInput(ctx, req.IncidentID, incident.Options{
		Mode:            mode,
		Engineering:     eng,
		IsScriptChanged: req.IsScriptChanged,
	})
	if err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	log := ctxlog.FromContext(ctx).With("execution_id", executionID, "incident_id", req.IncidentID, "mode", mode)
	ctx = ctxlog.WithLogger(ctx, log)

	var cancel context.CancelFunc
	if req.Config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Config.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	resp := &dto.ExecutionResponse{
		ExecutionID: executionID,
		IncidentID:  req.IncidentID,
		Mode:        mode,
		Status:      dto.ExecutionStatusRunning,
		StartTime:   time.Now(),
	}
	e.mu.Lock()
	e.running[executionID] = &runningExecution{resp: *resp, cancel: cancel}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, executionID)
		e.mu.Unlock()
	}()

	log.Info("execution started", "strategy", eng)
	res, runErr := graph.NewEngine(graph.WithMaxSteps(req.Config.MaxSteps)).Run(ctx, e.graph, input)

	resp.EndTime = time.Now()
	resp.Duration = resp.EndTime.Sub(resp.StartTime)
	if res != nil {
		resp.Steps = dto.StepsFrom(res.Steps)
	}
	if runErr != nil {
		resp.Status = dto.ExecutionStatusFailed
		if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
			resp.Status = dto.ExecutionStatusStopped
		}
		resp.ErrorKind = graph.KindOf(runErr)
		resp.Error = runErr.Error()
		var re *graph.RunError
		if errors.As(runErr, &re) {
			resp.LastState = re.State.Snapshot()
		}
		log.Error("execution failed", "kind", resp.ErrorKind, "error", runErr)
	} else {
		resp.Status = dto.ExecutionStatusCompleted
		resp.Output = map[string]any(incident.ResultSchema.Project(res.State))
		log.Info("execution completed", "steps", len(resp.Steps), "duration", resp.Duration)
		if mode == incident.ModeReport && e.reports != nil {
			e.saveReport(ctx, resp)
		}
	}
	imetrics.IncExecution(string(resp.Status))

	if e.snapshots != nil {
		// the execution context may be canceled or expired by now
		if _, err := e.snapshots.Record(context.WithoutCancel(ctx), resp); err != nil {
			log.Warn("snapshot not stored", "error", err)
		}
	}
	return resp, runErr
}

// saveReport stores the generated report. A failure is logged only; the
// execution result stands.
func (e *IncidentExecutor) saveReport(ctx context.Context, resp *dto.ExecutionResponse) {
	report, _ := resp.Output[incident.FieldReport].(string)
	id, err := e.reports.InsertReport(ctx, report)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("report not stored", "error", err)
		return
	}
	resp.ReportID = id
}

// LoadInput builds the initial state: script mode starts from the log row,
// report mode from the history row holding the executed script.
func (e *IncidentExecutor) LoadInput(ctx context.Context, id int64, opts incident.Options) (state.State, error) {
	switch opts.Mode {
	case incident.ModeScript:
		rec, err := e.repo.FetchLog(ctx, id)
		if err != nil {
			return state.State{}, fmt.Errorf("fetch log %d: %w", id, err)
		}
		if err := validation.ValidateWithPlayground(rec); err != nil {
			return state.State{}, graph.SchemaViolationf("log %d: %w", id, err)
		}
		return rec.ToState(opts), nil
	case incident.ModeReport:
		rec, err := e.repo.FetchHistory(ctx, id)
		if err != nil {
			return state.State{}, fmt.Errorf("fetch history %d: %w", id, err)
		}
		if err := validation.ValidateWithPlayground(rec); err != nil {
			return state.State{}, graph.SchemaViolationf("history %d: %w", id, err)
		}
		return rec.ToState(opts), nil
	}
	return state.State{}, opts.Mode.Validate()
}

// Stop cancels a running execution
func (e *IncidentExecutor) Stop(executionID string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	run, exists := e.running[executionID]
	if !exists {
		return fmt.Errorf("%w: %s", dto.ErrExecutionNotFound, executionID)
	}
	run.cancel()
	return nil
}

// GetStatus returns the current status of a running execution
func (e *IncidentExecutor) GetStatus(executionID string) (*dto.ExecutionResponse, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	run, exists := e.running[executionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", dto.ErrExecutionNotFound, executionID)
	}
	resp := run.resp
	return &resp, nil
}

// Running returns the IDs of executions in progress.
func (e *IncidentExecutor) Running() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}
