package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// schemaSQL is compiled into the binary so schema init works in images that
// do not ship the source tree.
//
//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	logger = logger.Named("postgres")
	logger.Info("connected to PostgreSQL")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	if _, err := s.pool.Exec(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	s.logger.Info("schema initialized")
	return nil
}

func (s *PostgresStore) SaveNetwork(ctx context.Context, n StoredNetwork) error {
	doc, err := json.Marshal(n.Document)
	if err != nil {
		return fmt.Errorf("encode network document: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO networks (id, name, variables, document, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, variables = EXCLUDED.variables, document = EXCLUDED.document;
	`, n.ID, n.Name, len(n.Document.Variables), doc, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert network: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadNetwork(ctx context.Context, id string) (StoredNetwork, error) {
	var n StoredNetwork
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, document, created_at FROM networks WHERE id = $1`, id,
	).Scan(&n.ID, &n.Name, &doc, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	if err := json.Unmarshal(doc, &n.Document); err != nil {
		return n, fmt.Errorf("decode network %s: %w", id, err)
	}
	return n, nil
}

func (s *PostgresStore) ListNetworks(ctx context.Context) ([]StoredNetwork, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, name, document, created_at FROM networks ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredNetwork
	for rows.Next() {
		var n StoredNetwork
		var doc []byte
		if err := rows.Scan(&n.ID, &n.Name, &doc, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(doc, &n.Document); err != nil {
			return nil, fmt.Errorf("decode network %s: %w", n.ID, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteNetwork(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM networks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveQueryRecord(ctx context.Context, rec models.QueryRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_log (id, network_id, kind, request, result, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, rec.ID, rec.NetworkID, rec.Kind, []byte(rec.Request), []byte(rec.Result), rec.DurationMs, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQueryRecords(ctx context.Context, networkID string, limit int) ([]models.QueryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, network_id::text, kind, request, result, duration_ms, created_at
		FROM query_log
		WHERE network_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, networkID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var req, res []byte
		if err := rows.Scan(&r.ID, &r.NetworkID, &r.Kind, &req, &res, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Request, r.Result = req, res
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveCrosscheckReport(ctx context.Context, report models.CrosscheckReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode crosscheck report: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO crosscheck_reports (id, network_id, target, within_tolerance, total_variation, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, report.ID, report.NetworkID, report.Target, report.WithinTolerance, report.TotalVariation, body, report.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert crosscheck report: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCrosscheckReports(ctx context.Context, networkID string, limit int) ([]models.CrosscheckReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT report FROM crosscheck_reports
		WHERE network_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, networkID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CrosscheckReport
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r models.CrosscheckReport
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
