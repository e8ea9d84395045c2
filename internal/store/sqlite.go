package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/seantiz/edmunds/internal/model"

	_ "modernc.org/sqlite"
)

const createCallsTable = `
CREATE TABLE IF NOT EXISTS calls (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    method      TEXT NOT NULL,
    params      TEXT,
    format      TEXT NOT NULL,
    url         TEXT NOT NULL,
    payload     BLOB,
    error       TEXT,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createCallsStatusIndex = `CREATE INDEX IF NOT EXISTS calls_status_idx ON calls (status)`

var callColumns = []string{
	"id", "status", "method", "params", "format", "url",
	"payload", "error", "duration_ms", "created_at", "finished_at",
}

// ErrNotFound is returned when a call is not found.
var ErrNotFound = errors.New("call not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection; pin it to one.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createCallsTable, createCallsStatusIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create calls table: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateCall inserts a new call record.
func (s *SQLiteStore) CreateCall(ctx context.Context, c *model.Call) error {
	params, err := encodeParams(c.Params)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert("calls").SetMap(sq.Eq{
		"id":          c.ID,
		"status":      c.Status,
		"method":      c.Method,
		"params":      params,
		"format":      c.Format,
		"url":         c.URL,
		"payload":     []byte(c.Payload),
		"error":       c.Error,
		"duration_ms": c.DurationMS,
		"created_at":  c.CreatedAt,
		"finished_at": c.FinishedAt,
	}).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// GetCall retrieves a call by ID.
func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*model.Call, error) {
	query, args, err := sq.Select(callColumns...).From("calls").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	c, err := scanCall(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return c, nil
}

// ListCalls returns a page of calls matching f, newest first, along with the
// total number of matching calls.
func (s *SQLiteStore) ListCalls(ctx context.Context, f CallFilter, limit, offset int) ([]*model.Call, int, error) {
	where := sq.And{}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": f.Status})
	}
	if f.Method != "" {
		where = append(where, sq.Eq{"method": f.Method})
	}

	countQuery, countArgs, err := sq.Select("COUNT(*)").From("calls").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	listQuery, listArgs, err := sq.Select(callColumns...).From("calls").Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	rows, err := tx.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var calls []*model.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate calls: %w", err)
	}

	return calls, total, nil
}

// FinishCall moves a pending call to the terminal status in c, recording its
// payload, error, duration and finish time.
func (s *SQLiteStore) FinishCall(ctx context.Context, c *model.Call) error {
	if !model.ValidTransition(model.StatusPending, c.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, model.StatusPending, c.Status)
	}

	query, args, err := sq.Update("calls").SetMap(sq.Eq{
		"status":      c.Status,
		"payload":     []byte(c.Payload),
		"error":       c.Error,
		"duration_ms": c.DurationMS,
		"finished_at": c.FinishedAt,
	}).Where(sq.Eq{"id": c.ID, "status": model.StatusPending}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish call: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Nothing updated: either the call is missing or already finished.
	current, err := s.GetCall(ctx, c.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, c.Status)
}

// GetCallStats aggregates the call history.
func (s *SQLiteStore) GetCallStats(ctx context.Context) (*CallStats, error) {
	stats := &CallStats{
		CountByStatus: make(map[string]int),
		CountByMethod: make(map[string]int),
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(duration_ms) FROM calls",
	).Scan(&stats.Total, &avg); err != nil {
		return nil, fmt.Errorf("count calls: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	for column, counts := range map[string]map[string]int{
		"status": stats.CountByStatus,
		"method": stats.CountByMethod,
	} {
		query, args, err := sq.Select(column, "COUNT(*)").From("calls").GroupBy(column).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build group by %s: %w", column, err)
		}
		if err := groupCounts(ctx, s.db, counts, query, args...); err != nil {
			return nil, fmt.Errorf("count by %s: %w", column, err)
		}
	}

	return stats, nil
}

func groupCounts(ctx context.Context, db *sql.DB, into map[string]int, query string, args ...any) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*model.Call, error) {
	c := &model.Call{}
	var params, errText sql.NullString
	var payload []byte

	if err := row.Scan(
		&c.ID, &c.Status, &c.Method, &params, &c.Format, &c.URL,
		&payload, &errText, &c.DurationMS, &c.CreatedAt, &c.FinishedAt,
	); err != nil {
		return nil, err
	}

	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &c.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if len(payload) > 0 {
		c.Payload = json.RawMessage(payload)
	}
	c.Error = errText.String
	return c, nil
}

func encodeParams(params map[string]string) (sql.NullString, error) {
	if len(params) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode params: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
