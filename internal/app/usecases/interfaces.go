package usecases

import (
	"context"

	"github.com/KEPSOAR/DER-SecAgent/internal/app/dto"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

// ModelInvoker produces text from a prompt. Implementations enforce their
// own timeout and report it as an error.
type ModelInvoker interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HistoryLookup returns prior responses to the same attack type, most
// recent first, at most limit of them.
type HistoryLookup interface {
	RecentHistory(ctx context.Context, attack incident.AttackType, limit int) ([]incident.HistoryRecord, error)
}

// IncidentRepository reads detection logs and reads or appends history.
type IncidentRepository interface {
	HistoryLookup
	FetchLog(ctx context.Context, id int64) (*incident.Record, error)
	FetchHistory(ctx context.Context, id int64) (*incident.HistoryRecord, error)
	InsertHistory(ctx context.Context, rec *incident.HistoryRecord) (int64, error)
}

// ReportStore keeps generated incident reports.
type ReportStore interface {
	InsertReport(ctx context.Context, report string) (int64, error)
}

// NotificationKind names the event a notification reports.
type NotificationKind string

const (
	NotifyScript NotificationKind = "script"
	NotifyReport NotificationKind = "report"
)

// Notification is the payload handed to a Notifier.
type Notification struct {
	Kind    NotificationKind
	LogID   int64
	Script  string
	Report  string
	Caution bool
}

// Notifier delivers notifications to operator tooling. Delivery failures
// are reported to the caller, which logs them and carries on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Verdict is a verifier's judgement on one artifact. Fixed, when not empty,
// replaces the artifact.
type Verdict struct {
	Verified bool   `json:"verified"`
	Feedback string `json:"feedback"`
	Fixed    string `json:"fixed"`
}

// Verifier judges a generated artifact. An error means the verifier could
// not produce a verdict.
type Verifier interface {
	Verify(ctx context.Context, kind incident.VerificationKind, artifact string, s state.State) (Verdict, error)
}

// SnapshotRecorder stores the outcome of a finished execution.
type SnapshotRecorder interface {
	Record(ctx context.Context, resp *dto.ExecutionResponse) (string, error)
}
