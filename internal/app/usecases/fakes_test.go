package usecases

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

var errUnavailable = errors.New("collaborator unavailable")

// fakeModel answers caution prompts with caution and everything else with
// the next scripted answer, cycling on the last one.
type fakeModel struct {
	mu       sync.Mutex
	answers  []string
	caution  string
	failOn   string
	prompts  []string
	generate int
}

func (m *fakeModel) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.failOn != "" && strings.Contains(prompt, m.failOn) {
		return "", errUnavailable
	}
	if strings.Contains(prompt, "irreversible changes") {
		if m.caution == "" {
			return "false", nil
		}
		return m.caution, nil
	}
	if len(m.answers) == 0 {
		return "iptables -A INPUT -s 203.0.113.7 -j DROP", nil
	}
	i := m.generate
	if i >= len(m.answers) {
		i = len(m.answers) - 1
	}
	m.generate++
	return m.answers[i], nil
}

func (m *fakeModel) promptsContaining(sub string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.prompts {
		if strings.Contains(p, sub) {
			out = append(out, p)
		}
	}
	return out
}

// fakeVerifier returns the scripted verdicts in order, repeating the last.
type fakeVerifier struct {
	mu       sync.Mutex
	verdicts []Verdict
	err      error
	calls    []incident.VerificationKind
}

func (v *fakeVerifier) Verify(_ context.Context, kind incident.VerificationKind, _ string, _ state.State) (Verdict, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, kind)
	if v.err != nil {
		return Verdict{}, v.err
	}
	if len(v.verdicts) == 0 {
		return Verdict{Verified: true}, nil
	}
	i := len(v.calls) - 1
	if i >= len(v.verdicts) {
		i = len(v.verdicts) - 1
	}
	return v.verdicts[i], nil
}

func rejectAlways(feedback string) *fakeVerifier {
	return &fakeVerifier{verdicts: []Verdict{{Verified: false, Feedback: feedback}}}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *fakeNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []NotificationKind
	for _, m := range n.sent {
		out = append(out, m.Kind)
	}
	return out
}

type fakeHistory struct {
	records []incident.HistoryRecord
	err     error
	calls   int
}

func (h *fakeHistory) RecentHistory(_ context.Context, _ incident.AttackType, limit int) ([]incident.HistoryRecord, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	if len(h.records) > limit {
		return h.records[:limit], nil
	}
	return h.records, nil
}

func sampleRecord() incident.Record {
	return incident.Record{
		ID:                    42,
		EventTime:             time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		DeviceIP:              "10.0.0.1",
		DeviceName:            "der-gw-01",
		SourceInstitutionCode: "EXT",
		SourceIP:              "203.0.113.7",
		SourcePort:            51515,
		SourceAssetName:       "unknown",
		SourceCountry:         "KR",
		SourceMAC:             "00:11:22:33:44:55",
		DestInstitutionCode:   "KEP",
		DestIP:                "10.0.0.1",
		DestPort:              502,
		DestAssetName:         "inverter",
		DestCountry:           "KR",
		DestMAC:               "66:77:88:99:aa:bb",
		Protocol:              "TCP",
		AttackType:            incident.AttackDoS,
		Account:               "root",
	}
}

func sampleHistory() incident.HistoryRecord {
	return incident.HistoryRecord{
		Record:         sampleRecord(),
		GivenScript:    "iptables -A INPUT -s 203.0.113.7 -j DROP",
		ExecutedScript: "iptables -A INPUT -s 203.0.113.7 -p tcp --dport 502 -j DROP",
		ChangedReason:  "restrict to modbus port",
		CautionLevel:   false,
	}
}

func scriptInput(eng incident.ScriptEngineering) state.State {
	return sampleRecord().ToState(incident.Options{Mode: incident.ModeScript, Engineering: eng})
}

func reportInput(changed bool) state.State {
	return sampleHistory().ToState(incident.Options{Mode: incident.ModeReport, IsScriptChanged: changed})
}
