package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rawblock/bayesnet-engine/pkg/models"
)

//go:embed sqlite_schema.sql
var sqliteSchemaSQL string

// SQLiteStore is the embedded single-file store used when no Postgres URL
// is configured.
type SQLiteStore struct {
	sqlDB  *sql.DB
	logger *zap.Logger
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	logger = logger.Named("sqlite")
	logger.Info("opened SQLite store", zap.String("path", path))
	return &SQLiteStore{sqlDB: sqlDB, logger: logger}, nil
}

func (s *SQLiteStore) Close() {
	if s == nil || s.sqlDB == nil {
		return
	}
	if err := s.sqlDB.Close(); err != nil {
		s.logger.Warn("close sqlite db", zap.Error(err))
	}
}

func (s *SQLiteStore) InitSchema() error {
	if _, err := s.sqlDB.Exec(sqliteSchemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveNetwork(ctx context.Context, n StoredNetwork) error {
	doc, err := json.Marshal(n.Document)
	if err != nil {
		return fmt.Errorf("encode network document: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO networks (id, name, variables, document, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, variables = excluded.variables, document = excluded.document`,
		n.ID, n.Name, len(n.Document.Variables), string(doc), toMillis(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert network: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadNetwork(ctx context.Context, id string) (StoredNetwork, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, document, created_at FROM networks WHERE id = ?`, id)
	n, err := scanNetwork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return n, ErrNotFound
	}
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNetwork(row rowScanner) (StoredNetwork, error) {
	var n StoredNetwork
	var doc string
	var created int64
	if err := row.Scan(&n.ID, &n.Name, &doc, &created); err != nil {
		return n, err
	}
	n.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(doc), &n.Document); err != nil {
		return n, fmt.Errorf("decode network %s: %w", n.ID, err)
	}
	return n, nil
}

func (s *SQLiteStore) ListNetworks(ctx context.Context) ([]StoredNetwork, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, document, created_at FROM networks ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredNetwork
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteNetwork(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM networks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveQueryRecord(ctx context.Context, rec models.QueryRecord) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO query_log (id, network_id, kind, request, result, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.NetworkID, rec.Kind, string(rec.Request), string(rec.Result), rec.DurationMs, toMillis(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListQueryRecords(ctx context.Context, networkID string, limit int) ([]models.QueryRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, network_id, kind, request, result, duration_ms, created_at
		FROM query_log
		WHERE network_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, networkID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var req, res string
		var created int64
		if err := rows.Scan(&r.ID, &r.NetworkID, &r.Kind, &req, &res, &r.DurationMs, &created); err != nil {
			return nil, err
		}
		r.Request, r.Result = json.RawMessage(req), json.RawMessage(res)
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveCrosscheckReport(ctx context.Context, report models.CrosscheckReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode crosscheck report: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO crosscheck_reports (id, network_id, target, within_tolerance, total_variation, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.NetworkID, report.Target, report.WithinTolerance, report.TotalVariation, string(body), toMillis(report.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert crosscheck report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCrosscheckReports(ctx context.Context, networkID string, limit int) ([]models.CrosscheckReport, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT report FROM crosscheck_reports
		WHERE network_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, networkID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CrosscheckReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r models.CrosscheckReport
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
