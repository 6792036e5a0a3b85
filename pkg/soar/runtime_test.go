package soar

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KEPSOAR/DER-SecAgent/internal/adapters/repository/memory"
	"github.com/KEPSOAR/DER-SecAgent/internal/app/dto"
	"github.com/KEPSOAR/DER-SecAgent/internal/app/usecases"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/snapshot"
	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
	"github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/config"
)

const blockScript = "iptables -A INPUT -s 203.0.113.7 -j DROP"

// scriptedModel answers by prompt type: reviews approve, caution checks
// say false, everything else gets the block script.
type scriptedModel struct {
	mu      sync.Mutex
	prompts []string
}

func (m *scriptedModel) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	switch {
	case strings.Contains(prompt, "strict reviewer"):
		return `{"verified": true, "feedback": "", "fixed": ""}`, nil
	case strings.Contains(prompt, "irreversible changes"):
		return "false", nil
	}
	return blockScript, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []usecases.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg usecases.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		LLM:      config.LLMConfig{Provider: "ollama", Timeout: time.Minute},
		Pipeline: config.PipelineConfig{MaxVerifyRetries: 2, MaxSteps: 1000, HistoryLimit: 5},
		Snapshot: config.SnapshotConfig{Codec: "msgpack", Compression: "zstd"},
		App:      config.AppConfig{LogFormat: "text"},
	}
}

func testRecord() incident.Record {
	return incident.Record{
		ID:         42,
		EventTime:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		DeviceIP:   "10.0.0.1",
		SourceIP:   "203.0.113.7",
		SourcePort: 51515,
		DestIP:     "10.0.0.1",
		DestPort:   502,
		Protocol:   "TCP",
		AttackType: incident.AttackDoS,
	}
}

func newTestRuntime(t *testing.T, cfg *config.Config, opts ...Option) (*Runtime, *scriptedModel, *recordingNotifier) {
	t.Helper()
	model := &scriptedModel{}
	notifier := &recordingNotifier{}
	opts = append([]Option{
		WithLogger(ctxlog.Discard()),
		WithModel(model),
		WithRepository(memory.NewIncidentStore(testRecord())),
		WithNotifier(notifier),
	}, opts...)
	rt, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt, model, notifier
}

func TestRuntime_ScriptThenReport(t *testing.T) {
	ctx := context.Background()
	rt, _, notifier := newTestRuntime(t, testConfig())

	resp, err := rt.Run(ctx, &ExecutionRequest{IncidentID: 42, Mode: "script", Engineering: "few"})
	require.NoError(t, err)
	assert.Equal(t, dto.ExecutionStatusCompleted, resp.Status)
	assert.Equal(t, blockScript, resp.Output[incident.FieldScript])
	assert.Equal(t, false, resp.Output[incident.FieldCaution])

	id, err := rt.SaveHistory(ctx, ApprovedResponse{
		LogID:          42,
		AgentScript:    blockScript,
		ExecutedScript: blockScript,
	})
	require.NoError(t, err)

	resp, err = rt.Run(ctx, &ExecutionRequest{IncidentID: id, Mode: "report"})
	require.NoError(t, err)
	assert.Equal(t, blockScript, resp.Output[incident.FieldReport])
	assert.Equal(t, true, resp.Output[incident.FieldCaution])

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, usecases.NotifyScript, notifier.sent[0].Kind)
	assert.Equal(t, usecases.NotifyReport, notifier.sent[1].Kind)

	snaps, err := rt.Snapshots(ctx, 42, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snapshot.StatusCompleted, snaps[0].Status)

	got, err := rt.Snapshot(ctx, snaps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, blockScript, got.State[incident.FieldScript])
}

func TestRuntime_DefaultBudgetFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.MaxSteps = 2
	rt, _, _ := newTestRuntime(t, cfg)

	req := &ExecutionRequest{IncidentID: 42, Mode: "script"}
	resp, err := rt.Run(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrBudgetExceeded)
	assert.Equal(t, 2, req.Config.MaxSteps)
	assert.Equal(t, dto.ExecutionStatusFailed, resp.Status)
}

func TestRuntime_SQLiteSnapshots(t *testing.T) {
	cfg := testConfig()
	cfg.Snapshot.DB = filepath.Join(t.TempDir(), "snapshots.db")
	cfg.Snapshot.Key = strings.Repeat("ab", 32)
	rt, _, _ := newTestRuntime(t, cfg)
	ctx := context.Background()

	_, err := rt.Run(ctx, &ExecutionRequest{IncidentID: 42, Mode: "script"})
	require.NoError(t, err)

	snaps, err := rt.Snapshots(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, blockScript, snaps[0].State[incident.FieldScript])
}

func TestNew_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Pipeline.MaxVerifyRetries = 0
		_, err := New(context.Background(), cfg, WithModel(&scriptedModel{}))
		assert.ErrorIs(t, err, config.ErrInvalid)
	})

	t.Run("unknown codec", func(t *testing.T) {
		cfg := testConfig()
		cfg.Snapshot.Codec = "gob"
		_, err := New(context.Background(), cfg,
			WithModel(&scriptedModel{}),
			WithRepository(memory.NewIncidentStore()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown codec")
	})
}

func TestNew_MemoryDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = config.DriverMemory
	rt, err := New(context.Background(), cfg, WithLogger(ctxlog.Discard()), WithModel(&scriptedModel{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	resp, err := rt.Run(context.Background(), &ExecutionRequest{IncidentID: 42, Mode: "script"})
	assert.ErrorIs(t, err, incident.ErrRecordNotFound)
	assert.Nil(t, resp)
}

func TestNewSerializer(t *testing.T) {
	s, err := NewSerializer(config.SnapshotConfig{Codec: "json", Compression: "gzip", Key: strings.Repeat("0f", 32)})
	require.NoError(t, err)
	assert.Equal(t, "json+gzip+aes", s.Format())

	_, err = NewSerializer(config.SnapshotConfig{Key: "zz"})
	assert.Error(t, err)
}

func TestRuntime_StopUnknown(t *testing.T) {
	rt, _, _ := newTestRuntime(t, testConfig())
	assert.True(t, errors.Is(rt.Stop("nope"), dto.ErrExecutionNotFound))
	assert.Empty(t, rt.Running())
	_, err := rt.Status("nope")
	assert.ErrorIs(t, err, dto.ErrExecutionNotFound)
}
