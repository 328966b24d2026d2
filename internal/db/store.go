package db

import (
	"context"
	"errors"
	"time"

	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// StoredNetwork is a persisted network document with its identity.
type StoredNetwork struct {
	ID        string
	Name      string
	Document  models.NetworkDocument
	CreatedAt time.Time
}

// Store persists networks, the query audit log and crosscheck reports.
// PostgresStore and SQLiteStore both implement it.
type Store interface {
	InitSchema() error
	SaveNetwork(ctx context.Context, n StoredNetwork) error
	LoadNetwork(ctx context.Context, id string) (StoredNetwork, error)
	ListNetworks(ctx context.Context) ([]StoredNetwork, error)
	DeleteNetwork(ctx context.Context, id string) error
	SaveQueryRecord(ctx context.Context, rec models.QueryRecord) error
	ListQueryRecords(ctx context.Context, networkID string, limit int) ([]models.QueryRecord, error)
	SaveCrosscheckReport(ctx context.Context, report models.CrosscheckReport) error
	ListCrosscheckReports(ctx context.Context, networkID string, limit int) ([]models.CrosscheckReport, error)
	Close()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
