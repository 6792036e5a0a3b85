package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KEPSOAR/DER-SecAgent/internal/adapters/repository/memory"
	"github.com/KEPSOAR/DER-SecAgent/internal/app/dto"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/snapshot"
	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
	"github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/config"
	"github.com/KEPSOAR/DER-SecAgent/pkg/soar"
)

const blockScript = "iptables -A INPUT -s 203.0.113.7 -j DROP"

type scriptedModel struct{}

func (scriptedModel) Generate(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "strict reviewer"):
		return `{"verified": true}`, nil
	case strings.Contains(prompt, "irreversible changes"):
		return "false", nil
	}
	return blockScript, nil
}

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		LLM:      config.LLMConfig{Provider: "ollama", Timeout: time.Minute},
		Pipeline: config.PipelineConfig{MaxVerifyRetries: 2, MaxSteps: 1000, HistoryLimit: 5},
		App:      config.AppConfig{LogFormat: "text"},
	}
	store := memory.NewIncidentStore(incident.Record{
		ID:         42,
		EventTime:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		DeviceIP:   "10.0.0.1",
		SourceIP:   "203.0.113.7",
		DestIP:     "10.0.0.1",
		DestPort:   502,
		AttackType: incident.AttackProbe,
	})
	rt, err := soar.New(context.Background(), cfg,
		soar.WithLogger(ctxlog.Discard()),
		soar.WithModel(scriptedModel{}),
		soar.WithRepository(store))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	srv := httptest.NewServer(newMux(rt, apiKey))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, "")
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunIncident(t *testing.T) {
	srv := newTestServer(t, "secret")

	resp := do(t, http.MethodPost, srv.URL+"/v1/incidents/42/run", "secret", `{"mode":"script","script_engineering":"cot"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.ExecutionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, dto.ExecutionStatusCompleted, out.Status)
	assert.Equal(t, blockScript, out.Output[incident.FieldScript])
	assert.Equal(t, false, out.Output[incident.FieldCaution])

	resp = do(t, http.MethodGet, srv.URL+"/v1/incidents/42/snapshots?limit=5", "secret", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snaps []snapshot.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, out.ExecutionID, snaps[0].ExecutionID)

	resp = do(t, http.MethodGet, srv.URL+"/v1/snapshots/"+snaps[0].ID, "secret", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunIncident_Errors(t *testing.T) {
	srv := newTestServer(t, "secret")

	tests := []struct {
		name   string
		path   string
		key    string
		body   string
		status int
		kind   graph.Kind
	}{
		{"no key", "/v1/incidents/42/run", "", `{"mode":"script"}`, http.StatusUnauthorized, ""},
		{"bad mode", "/v1/incidents/42/run", "secret", `{"mode":"audit"}`, http.StatusBadRequest, ""},
		{"bad id", "/v1/incidents/x/run", "secret", `{"mode":"script"}`, http.StatusBadRequest, ""},
		{"unknown log", "/v1/incidents/7/run", "secret", `{"mode":"script"}`, http.StatusNotFound, ""},
		{"unknown history", "/v1/incidents/7/run", "secret", `{"mode":"report"}`, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+tt.path, tt.key, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	t.Run("budget exceeded", func(t *testing.T) {
		resp := do(t, http.MethodPost, srv.URL+"/v1/incidents/42/run", "secret", `{"mode":"script","max_steps":2}`)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		var out dto.ExecutionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, graph.KindBudgetExceeded, out.ErrorKind)
		assert.NotEmpty(t, out.LastState)
	})
}

func TestHistoryThenReport(t *testing.T) {
	srv := newTestServer(t, "")

	resp := do(t, http.MethodPost, srv.URL+"/v1/history", "",
		`{"log_id":42,"agent_script":"iptables -F","executed_script":"iptables -F"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, int64(1), created["history_id"])

	resp = do(t, http.MethodPost, srv.URL+"/v1/incidents/1/run", "", `{"mode":"report"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/v1/history", "", `{"log_id":42,"agent_script":"a","executed_script":"b"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecutions(t *testing.T) {
	srv := newTestServer(t, "")

	resp := do(t, http.MethodGet, srv.URL+"/v1/executions", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var running map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&running))
	assert.Empty(t, running["running"])

	resp = do(t, http.MethodGet, srv.URL+"/v1/executions/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, http.MethodDelete, srv.URL+"/v1/executions/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, "")
	do(t, http.MethodPost, srv.URL+"/v1/incidents/42/run", "", `{"mode":"script"}`)

	resp := do(t, http.MethodGet, srv.URL+"/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	body := buf.String()
	assert.Contains(t, body, "# TYPE secagent_executions_total counter")
	assert.Contains(t, body, `secagent_executions_total{status="completed"}`)
	assert.Contains(t, body, `secagent_verify_attempts_total{kind="script"}`)
}

func TestEscapeLabel(t *testing.T) {
	assert.Equal(t, `a\"b\\c\nd`, escapeLabel("a\"b\\c\nd"))
}
