package soar

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KEPSOAR/DER-SecAgent/internal/adapters/llm"
	"github.com/KEPSOAR/DER-SecAgent/internal/adapters/repository/memory"
	"github.com/KEPSOAR/DER-SecAgent/internal/adapters/repository/postgres"
	"github.com/KEPSOAR/DER-SecAgent/internal/adapters/repository/sqlite"
	"github.com/KEPSOAR/DER-SecAgent/internal/adapters/webhook"
	"github.com/KEPSOAR/DER-SecAgent/internal/app/dto"
	"github.com/KEPSOAR/DER-SecAgent/internal/app/services"
	"github.com/KEPSOAR/DER-SecAgent/internal/app/usecases"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/snapshot"
	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
	"github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/config"
	"github.com/KEPSOAR/DER-SecAgent/pkg/serialization"
)

// Re-exported for callers that cannot import internal packages.
type (
	ExecutionRequest  = dto.ExecutionRequest
	ExecutionResponse = dto.ExecutionResponse
	ApprovedResponse  = usecases.ApprovedResponse
	Snapshot          = snapshot.Snapshot
)

// Runtime owns the wired components of one agent process.
type Runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	executor  *usecases.IncidentExecutor
	history   *usecases.HistoryRecorder
	snapshots *services.SnapshotService
	closers   []func() error
}

type options struct {
	logger   *slog.Logger
	model    usecases.ModelInvoker
	verifier usecases.Verifier
	repo     usecases.IncidentRepository
	notifier usecases.Notifier
	saver    snapshot.Saver
}

// Option replaces a component that would otherwise be built from the
// configuration.
type Option func(*options)

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithModel(m usecases.ModelInvoker) Option { return func(o *options) { o.model = m } }

func WithVerifier(v usecases.Verifier) Option { return func(o *options) { o.verifier = v } }

func WithRepository(r usecases.IncidentRepository) Option { return func(o *options) { o.repo = r } }

func WithNotifier(n usecases.Notifier) Option { return func(o *options) { o.notifier = n } }

func WithSnapshotSaver(s snapshot.Saver) Option { return func(o *options) { o.saver = s } }

// New wires a Runtime. Components not supplied as options are built from
// cfg: the model client from the LLM section, a PostgreSQL repository from
// the database URL (or an empty in-memory store with DB_DRIVER=memory), a
// webhook notifier when a webhook URL is set, and a SQLite snapshot store
// when SNAPSHOT_DB is set or an in-memory one otherwise. Reports of
// completed report runs go to the repository when it can store them. On
// error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (rt *Runtime, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = ctxlog.FromContext(ctx)
	}

	rt = &Runtime{cfg: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	if o.model == nil {
		if o.model, err = newModel(cfg.LLM); err != nil {
			return nil, err
		}
	}
	if o.repo == nil {
		if o.repo, err = rt.openRepository(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if o.notifier == nil && (cfg.Webhook.ScriptURL != "" || cfg.Webhook.ReportURL != "") {
		o.notifier = webhook.NewNotifier(webhook.Config{
			ScriptURL:          cfg.Webhook.ScriptURL,
			ReportURL:          cfg.Webhook.ReportURL,
			Token:              cfg.Webhook.Token,
			Timeout:            cfg.Webhook.Timeout,
			InsecureSkipVerify: cfg.Webhook.InsecureSkipVerify,
		})
	}
	if o.saver == nil {
		if o.saver, err = rt.openSnapshots(ctx, cfg.Snapshot); err != nil {
			return nil, err
		}
	}

	g, err := usecases.BuildSOARGraph(usecases.Collaborators{
		Model:    o.model,
		Verifier: o.verifier,
		History:  o.repo,
		Notifier: o.notifier,
	}, usecases.PipelineConfig{
		MaxVerifyRetries: cfg.Pipeline.MaxVerifyRetries,
		HistoryLimit:     cfg.Pipeline.HistoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	rt.snapshots = services.NewSnapshotService(o.saver)
	execOpts := []usecases.ExecutorOption{usecases.WithSnapshots(rt.snapshots)}
	if reports, ok := o.repo.(usecases.ReportStore); ok {
		execOpts = append(execOpts, usecases.WithReports(reports))
	}
	rt.executor = usecases.NewIncidentExecutor(g, o.repo, execOpts...)
	rt.history = usecases.NewHistoryRecorder(o.repo)
	return rt, nil
}

func newModel(cfg config.LLMConfig) (*llm.Client, error) {
	c := llm.Config{Provider: cfg.Provider, Timeout: cfg.Timeout}
	switch cfg.Provider {
	case llm.ProviderOpenAI:
		c.BaseURL, c.Model, c.APIKey = cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIAPIKey
	default:
		c.BaseURL, c.Model = cfg.OllamaBaseURL, cfg.OllamaModel
	}
	return llm.New(c)
}

func (rt *Runtime) openRepository(ctx context.Context, cfg *config.Config) (usecases.IncidentRepository, error) {
	if cfg.Database.Driver == config.DriverMemory {
		rt.logger.Warn("using an in-memory incident store; logs and history are not persisted")
		return memory.NewIncidentStore(), nil
	}
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
	return postgres.NewIncidentRepository(pool), nil
}

func (rt *Runtime) openSnapshots(ctx context.Context, cfg config.SnapshotConfig) (snapshot.Saver, error) {
	ser, err := NewSerializer(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.DB == "" {
		store := memory.NewSnapshotStore(memory.Config{Serializer: ser})
		rt.closers = append(rt.closers, store.Close)
		return store, nil
	}
	saver, err := sqlite.Open(ctx, cfg.DB, ser)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, saver.Close)
	return saver, nil
}

// NewSerializer builds the snapshot serializer named by cfg.
func NewSerializer(cfg config.SnapshotConfig) (*serialization.Serializer, error) {
	codec, err := serialization.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	compression, err := serialization.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	var key []byte
	if cfg.Key != "" {
		if key, err = hex.DecodeString(cfg.Key); err != nil {
			return nil, fmt.Errorf("snapshot key: %w", err)
		}
	}
	return serialization.NewSerializer(serialization.Config{
		Codec:       codec,
		Compression: compression,
		EncryptKey:  key,
	})
}

// Run executes one incident. A zero step budget takes MAX_STEPS.
func (rt *Runtime) Run(ctx context.Context, req *ExecutionRequest) (*ExecutionResponse, error) {
	if req.Config.MaxSteps == 0 {
		req.Config.MaxSteps = rt.cfg.Pipeline.MaxSteps
	}
	return rt.executor.Execute(ctxlog.WithLogger(ctx, rt.logger), req)
}

// SaveHistory records an operator's decision and returns the history ID.
func (rt *Runtime) SaveHistory(ctx context.Context, r ApprovedResponse) (int64, error) {
	id, err := rt.history.Save(ctx, r)
	if err != nil {
		return 0, err
	}
	rt.logger.Info("history saved", "history_id", id, "log_id", r.LogID, "changed", r.ExecutedScript != r.AgentScript)
	return id, nil
}

// Stop cancels a running execution.
func (rt *Runtime) Stop(executionID string) error { return rt.executor.Stop(executionID) }

// Status returns the progress of a running execution.
func (rt *Runtime) Status(executionID string) (*ExecutionResponse, error) {
	return rt.executor.GetStatus(executionID)
}

// Running lists the IDs of executions in flight.
func (rt *Runtime) Running() []string { return rt.executor.Running() }

// Snapshots returns the stored outcomes of an incident, newest first.
func (rt *Runtime) Snapshots(ctx context.Context, incidentID int64, limit int) ([]*Snapshot, error) {
	return rt.snapshots.ListForIncident(ctx, incidentID, limit)
}

// Snapshot returns one stored outcome.
func (rt *Runtime) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	return rt.snapshots.Load(ctx, id)
}

// Close releases what New opened, in reverse order.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
