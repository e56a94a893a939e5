package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/sdk-bridge/pkg/events"
)

const repoLogPrefix = "db:repository"

const defaultListLimit = 100

// Repository reads and writes the traffic journal.
type Repository struct {
	pool *pgxpool.Pool
}

var _ events.TrafficStore = (*Repository)(nil)

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertTraffic journals one traffic event. Duplicate IDs are ignored.
func (r *Repository) InsertTraffic(ctx context.Context, event *events.TrafficEvent) error {
	rec, err := recordFromEvent(event)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO traffic_journal
		   (id, direction, target, platform, module, operation, handle, kind, stage, outcome, error_code, size, recorded)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Direction, rec.Target, rec.Platform, rec.Module, rec.Operation,
		rec.Handle, rec.Kind, rec.Stage, rec.Outcome, rec.ErrorCode, rec.Size, rec.Recorded)
	if err != nil {
		return fmt.Errorf("%s - insert %s.%s failed: %w", repoLogPrefix, rec.Module, rec.Operation, err)
	}
	return nil
}

// ListTraffic returns journal rows matching f, newest first.
func (r *Repository) ListTraffic(ctx context.Context, f TrafficFilter) ([]TrafficRecord, error) {
	query, args := buildListQuery(f)
	slog.Debug(fmt.Sprintf("%s - ListTraffic %s", repoLogPrefix, query))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - list failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []TrafficRecord
	for rows.Next() {
		rec, err := scanTraffic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - list rows: %w", repoLogPrefix, err)
	}
	return out, nil
}

// GetTraffic finds a journal row by ID. Returns nil, nil when absent.
func (r *Repository) GetTraffic(ctx context.Context, id string) (*TrafficRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+trafficColumns+` FROM traffic_journal WHERE id = $1`, id)
	rec, err := scanTraffic(row)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return nil, err
}

// CountByOutcome aggregates journal rows since the given time.
func (r *Repository) CountByOutcome(ctx context.Context, since time.Time) ([]OutcomeCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT module, outcome, COUNT(*)
		 FROM traffic_journal
		 WHERE recorded >= $1
		 GROUP BY module, outcome
		 ORDER BY module, outcome`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("%s - count failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Module, &c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("%s - scan count: %w", repoLogPrefix, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const trafficColumns = `id, direction, target, platform, module, operation, handle, kind, stage, outcome, error_code, size, recorded`

// buildListQuery assembles the filtered SELECT for ListTraffic.
func buildListQuery(f TrafficFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Module != "" {
		add("module = $%d", f.Module)
	}
	if f.Operation != "" {
		add("operation = $%d", f.Operation)
	}
	if f.Handle != nil {
		add("handle = $%d", *f.Handle)
	}
	if f.Outcome != "" {
		add("outcome = $%d", f.Outcome)
	}
	if !f.Since.IsZero() {
		add("recorded >= $%d", f.Since.UTC())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + trafficColumns + ` FROM traffic_journal`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY recorded DESC LIMIT $%d`, len(args))
	return query, args
}

// recordFromEvent maps a traffic event to a journal row.
func recordFromEvent(e *events.TrafficEvent) (*TrafficRecord, error) {
	if e == nil {
		return nil, fmt.Errorf("%s - nil traffic event", repoLogPrefix)
	}
	recorded := time.Now().UTC()
	if e.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid timestamp %q: %w", repoLogPrefix, e.Timestamp, err)
		}
		recorded = ts.UTC()
	}
	return &TrafficRecord{
		ID:        e.ID,
		Direction: string(e.Direction),
		Target:    optional(e.Target),
		Platform:  optional(e.Platform),
		Module:    e.Module,
		Operation: e.Operation,
		Handle:    e.Handle,
		Kind:      optional(e.Kind),
		Stage:     optional(e.Stage),
		Outcome:   e.Outcome,
		ErrorCode: e.ErrorCode,
		Size:      e.Size,
		Recorded:  recorded,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanTraffic(row pgx.Row) (*TrafficRecord, error) {
	var rec TrafficRecord
	err := row.Scan(&rec.ID, &rec.Direction, &rec.Target, &rec.Platform, &rec.Module, &rec.Operation,
		&rec.Handle, &rec.Kind, &rec.Stage, &rec.Outcome, &rec.ErrorCode, &rec.Size, &rec.Recorded)
	if err != nil {
		return nil, fmt.Errorf("%s - scan traffic: %w", repoLogPrefix, err)
	}
	return &rec, nil
}
