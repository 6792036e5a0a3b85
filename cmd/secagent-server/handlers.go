package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/KEPSOAR/DER-SecAgent/internal/app/dto"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/snapshot"
	"github.com/KEPSOAR/DER-SecAgent/pkg/soar"
	"github.com/KEPSOAR/DER-SecAgent/pkg/validation"
)

// HeaderAPIKey carries SERVER_API_KEY on API calls.
const HeaderAPIKey = "X-Api-Key"

type server struct {
	rt *soar.Runtime
}

type errorBody struct {
	Error string     `json:"error"`
	Kind  graph.Kind `json:"kind,omitempty"`
}

func newMux(rt *soar.Runtime, apiKey string) *http.ServeMux {
	s := &server{rt: rt}
	chain := func() *validation.RequestValidator {
		return validation.NewRequestValidator(nil).APIKey(HeaderAPIKey, apiKey)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("secagent server is running. See /healthz, /metrics, /debug/pprof/\n"))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /metrics", promMetricsHandler)

	mux.Handle("POST /v1/incidents/{id}/run",
		chain().PathInt("id").JSON(validation.RunRequest{}).Build()(http.HandlerFunc(s.runIncident)))
	mux.Handle("GET /v1/incidents/{id}/snapshots",
		chain().PathInt("id").Build()(http.HandlerFunc(s.listSnapshots)))
	mux.Handle("GET /v1/snapshots/{id}",
		chain().Build()(http.HandlerFunc(s.getSnapshot)))
	mux.Handle("POST /v1/history",
		chain().JSON(validation.HistoryRequest{}).Build()(http.HandlerFunc(s.saveHistory)))
	mux.Handle("GET /v1/executions",
		chain().Build()(http.HandlerFunc(s.listRunning)))
	mux.Handle("GET /v1/executions/{id}",
		chain().Build()(http.HandlerFunc(s.executionStatus)))
	mux.Handle("DELETE /v1/executions/{id}",
		chain().Build()(http.HandlerFunc(s.stopExecution)))
	return mux
}

// runIncident runs synchronously and answers with the execution response.
// Failed executions are answered with 500, stopped ones with 409, both
// carrying the response with the last merged state.
func (s *server) runIncident(w http.ResponseWriter, r *http.Request) {
	body, _ := validation.Body[validation.RunRequest](r.Context())
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)

	resp, err := s.rt.Run(r.Context(), body.ExecutionRequest(id))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case resp == nil:
		writeError(w, statusFor(err), err)
	case resp.Status == dto.ExecutionStatusStopped:
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func (s *server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	snaps, err := s.rt.Snapshots(r.Context(), id, limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.rt.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) saveHistory(w http.ResponseWriter, r *http.Request) {
	body, _ := validation.Body[validation.HistoryRequest](r.Context())
	id, err := s.rt.SaveHistory(r.Context(), soar.ApprovedResponse{
		LogID:          body.LogID,
		AgentScript:    body.AgentScript,
		ExecutedScript: body.ExecutedScript,
		ChangedReason:  body.ChangedReason,
		Caution:        body.Caution,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"history_id": id})
}

func (s *server) listRunning(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"running": s.rt.Running()})
}

func (s *server) executionStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.rt.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) stopExecution(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Stop(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, incident.ErrRecordNotFound),
		errors.Is(err, incident.ErrHistoryNotFound),
		errors.Is(err, snapshot.ErrSnapshotNotFound),
		errors.Is(err, dto.ErrExecutionNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrSchemaViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, graph.ErrConfiguration),
		errors.Is(err, dto.ErrInvalidConfig),
		errors.Is(err, snapshot.ErrInvalidLimit):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: graph.KindOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
