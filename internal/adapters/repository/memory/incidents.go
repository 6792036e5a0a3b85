package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
)

// IncidentStore is an in-memory incident repository: detection logs keyed
// by ID, an append-only history table and stored reports.
type IncidentStore struct {
	mu      sync.RWMutex
	logs    map[int64]incident.Record
	history map[int64]incident.HistoryRecord
	nextID  int64
	reports []string
}

// NewIncidentStore creates a store seeded with logs.
func NewIncidentStore(logs ...incident.Record) *IncidentStore {
	s := &IncidentStore{
		logs:    make(map[int64]incident.Record, len(logs)),
		history: make(map[int64]incident.HistoryRecord),
	}
	for _, l := range logs {
		s.logs[l.ID] = l
	}
	return s
}

// PutLog adds or replaces a detection log.
func (s *IncidentStore) PutLog(rec incident.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[rec.ID] = rec
}

// FetchLog returns the log with id.
func (s *IncidentStore) FetchLog(_ context.Context, id int64) (*incident.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.logs[id]
	if !ok {
		return nil, fmt.Errorf("%w: log %d", incident.ErrRecordNotFound, id)
	}
	return &rec, nil
}

// FetchHistory returns the history row with id.
func (s *IncidentStore) FetchHistory(_ context.Context, id int64) (*incident.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.history[id]
	if !ok {
		return nil, fmt.Errorf("%w: history %d", incident.ErrHistoryNotFound, id)
	}
	return &rec, nil
}

// InsertHistory appends a history row under a fresh ID and returns it.
func (s *IncidentStore) InsertHistory(_ context.Context, rec *incident.HistoryRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	row := *rec
	row.ID = s.nextID
	s.history[row.ID] = row
	return row.ID, nil
}

// RecentHistory returns up to limit rows of the attack type, newest first.
func (s *IncidentStore) RecentHistory(_ context.Context, attack incident.AttackType, limit int) ([]incident.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []incident.HistoryRecord
	for _, h := range s.history {
		if h.AttackType == attack {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertReport stores a report; ids start at 1.
func (s *IncidentStore) InsertReport(_ context.Context, report string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return int64(len(s.reports)), nil
}

// Report returns the report stored under id.
func (s *IncidentStore) Report(id int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.reports)) {
		return "", false
	}
	return s.reports[id-1], true
}
