// Package postgres reads detection logs, reads or appends response history
// and stores incident reports in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
)

// Querier is the subset of *pgxpool.Pool the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IncidentRepository implements usecases.IncidentRepository over the log
// and history tables.
type IncidentRepository struct {
	db Querier
}

// NewIncidentRepository creates a repository on an open pool.
func NewIncidentRepository(db Querier) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// Connect opens a pool for dsn and checks it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Text columns are nullable in the tables; they are read as empty strings.
const logColumns = `id, event_time,
	COALESCE(device_ip, ''), COALESCE(device_name, ''), COALESCE(source_institution_code, ''),
	COALESCE(source_ip, ''), COALESCE(source_port, 0), COALESCE(source_asset_name, ''),
	COALESCE(source_country, ''), COALESCE(source_mac, ''), COALESCE(dest_institution_code, ''),
	COALESCE(dest_ip, ''), COALESCE(dest_port, 0), COALESCE(dest_asset_name, ''),
	COALESCE(dest_country, ''), COALESCE(dest_mac, ''), COALESCE(protocol, ''),
	COALESCE(action, ''), COALESCE(attack_type, ''), COALESCE(account, ''), COALESCE(risk_level, '')`

const historyColumns = logColumns + `,
	COALESCE(given_script, ''), COALESCE(executed_script, ''), COALESCE(changed_reason, ''),
	COALESCE(caution_level, 0) <> 0`

func logTargets(r *incident.Record) []any {
	return []any{
		&r.ID, &r.EventTime,
		&r.DeviceIP, &r.DeviceName, &r.SourceInstitutionCode,
		&r.SourceIP, &r.SourcePort, &r.SourceAssetName,
		&r.SourceCountry, &r.SourceMAC, &r.DestInstitutionCode,
		&r.DestIP, &r.DestPort, &r.DestAssetName,
		&r.DestCountry, &r.DestMAC, &r.Protocol,
		&r.Action, (*string)(&r.AttackType), &r.Account, (*string)(&r.RiskLevel),
	}
}

func historyTargets(h *incident.HistoryRecord) []any {
	return append(logTargets(&h.Record), &h.GivenScript, &h.ExecutedScript, &h.ChangedReason, &h.CautionLevel)
}

// FetchLog returns the log row with id.
func (r *IncidentRepository) FetchLog(ctx context.Context, id int64) (*incident.Record, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: log %d", incident.ErrRecordNotFound, id)
	}
	var rec incident.Record
	err := r.db.QueryRow(ctx, "SELECT "+logColumns+" FROM log WHERE id = $1", id).Scan(logTargets(&rec)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: log %d", incident.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query log %d: %w", id, err)
	}
	return &rec, nil
}

// FetchHistory returns the history row with id.
func (r *IncidentRepository) FetchHistory(ctx context.Context, id int64) (*incident.HistoryRecord, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: history %d", incident.ErrHistoryNotFound, id)
	}
	var rec incident.HistoryRecord
	err := r.db.QueryRow(ctx, "SELECT "+historyColumns+" FROM history WHERE id = $1", id).Scan(historyTargets(&rec)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: history %d", incident.ErrHistoryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query history %d: %w", id, err)
	}
	return &rec, nil
}

// RecentHistory returns up to limit history rows for attack, newest first.
func (r *IncidentRepository) RecentHistory(ctx context.Context, attack incident.AttackType, limit int) ([]incident.HistoryRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		"SELECT "+historyColumns+" FROM history WHERE attack_type = $1 ORDER BY id DESC LIMIT $2",
		string(attack), limit)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", attack, err)
	}
	defer rows.Close()

	var out []incident.HistoryRecord
	for rows.Next() {
		var h incident.HistoryRecord
		if err := rows.Scan(historyTargets(&h)...); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// InsertHistory appends a history row and returns its generated id. The
// row's own ID is ignored. An empty changed reason is stored as NULL.
func (r *IncidentRepository) InsertHistory(ctx context.Context, h *incident.HistoryRecord) (int64, error) {
	var reason any
	if h.ChangedReason != "" {
		reason = h.ChangedReason
	}
	caution := 0
	if h.CautionLevel {
		caution = 1
	}

	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO history (event_time, device_ip, device_name, source_institution_code, source_ip,
			source_port, source_asset_name, source_country, source_mac, dest_institution_code, dest_ip,
			dest_port, dest_asset_name, dest_country, dest_mac, protocol, action, attack_type, account,
			risk_level, given_script, executed_script, changed_reason, caution_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24)
		RETURNING id`,
		h.EventTime, h.DeviceIP, h.DeviceName, h.SourceInstitutionCode, h.SourceIP,
		h.SourcePort, h.SourceAssetName, h.SourceCountry, h.SourceMAC, h.DestInstitutionCode, h.DestIP,
		h.DestPort, h.DestAssetName, h.DestCountry, h.DestMAC, h.Protocol, h.Action, string(h.AttackType), h.Account,
		string(h.RiskLevel), h.GivenScript, h.ExecutedScript, reason, caution,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}
	return id, nil
}

// InsertReport stores a generated report and returns its id.
func (r *IncidentRepository) InsertReport(ctx context.Context, report string) (int64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, `INSERT INTO report (report) VALUES ($1) RETURNING id`, report).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}
