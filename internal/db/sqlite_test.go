package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/network/networktest"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "engine.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.InitSchema())
	t.Cleanup(s.Close)
	return s
}

func storedAlarm(t *testing.T, created time.Time) StoredNetwork {
	n := networktest.Alarm(t)
	return StoredNetwork{ID: n.ID().String(), Name: n.Name(), Document: n.Document(), CreatedAt: created}
}

func TestSQLiteStore_NetworkLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alarm := storedAlarm(t, created)
	require.NoError(t, s.SaveNetwork(ctx, alarm))

	got, err := s.LoadNetwork(ctx, alarm.ID)
	require.NoError(t, err)
	assert.Equal(t, alarm, got)

	asia := networktest.Asia(t)
	require.NoError(t, s.SaveNetwork(ctx, StoredNetwork{
		ID: asia.ID().String(), Name: asia.Name(), Document: asia.Document(), CreatedAt: created.Add(time.Hour),
	}))

	list, err := s.ListNetworks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alarm", list[0].Name)
	assert.Equal(t, "asia", list[1].Name)

	require.NoError(t, s.DeleteNetwork(ctx, alarm.ID))
	_, err = s.LoadNetwork(ctx, alarm.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteNetwork(ctx, alarm.ID), ErrNotFound)
}

func TestSQLiteStore_SaveNetworkUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alarm := storedAlarm(t, time.Now())
	require.NoError(t, s.SaveNetwork(ctx, alarm))
	alarm.Name = "alarm-v2"
	alarm.Document.Name = "alarm-v2"
	require.NoError(t, s.SaveNetwork(ctx, alarm))

	got, err := s.LoadNetwork(ctx, alarm.ID)
	require.NoError(t, err)
	assert.Equal(t, "alarm-v2", got.Name)
	assert.Equal(t, "alarm-v2", got.Document.Name)
}

func TestSQLiteStore_QueryRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alarm := storedAlarm(t, time.Now())
	require.NoError(t, s.SaveNetwork(ctx, alarm))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveQueryRecord(ctx, models.QueryRecord{
			ID:         uuid.NewString(),
			NetworkID:  alarm.ID,
			Kind:       "exact",
			Request:    json.RawMessage(`{"query":["Burglary"]}`),
			Result:     json.RawMessage(`{"method":"junction-tree"}`),
			DurationMs: float64(i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recs, err := s.ListQueryRecords(ctx, alarm.ID, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2.0, recs[0].DurationMs, "newest first")
	assert.JSONEq(t, `{"query":["Burglary"]}`, string(recs[0].Request))

	// Records go with their network.
	require.NoError(t, s.DeleteNetwork(ctx, alarm.ID))
	recs, err = s.ListQueryRecords(ctx, alarm.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLiteStore_CrosscheckReports(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alarm := storedAlarm(t, time.Now())
	require.NoError(t, s.SaveNetwork(ctx, alarm))

	report := models.CrosscheckReport{
		ID:        uuid.NewString(),
		NetworkID: alarm.ID,
		Target:    "Burglary",
		Evidence:  map[string]string{"JohnCalls": "True"},
		Exact: models.Distribution{Variable: "Burglary", States: []models.StateProbability{
			{State: "False", Probability: 0.98}, {State: "True", Probability: 0.02},
		}},
		TotalVariation:  0.004,
		Tolerance:       0.05,
		WithinTolerance: true,
		CreatedAt:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveCrosscheckReport(ctx, report))

	got, err := s.ListCrosscheckReports(ctx, alarm.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, report, got[0])
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ", zap.NewNop())
	assert.Error(t, err)
}
