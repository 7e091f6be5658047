package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"crediario-service/internal/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryDSN builds a shared in-memory database unique to the test, kept
// alive by the manager's idle connection.
func memoryDSN(t *testing.T) string {
	return "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
}

func testConfig(t *testing.T) config.AppConfig {
	return config.AppConfig{
		DBPath:        memoryDSN(t),
		OpenTimeout:   5 * time.Second,
		TxTimeout:     5 * time.Second,
		BusyTimeoutMs: 5000,
		MaxOpenRetry:  3,
		MaxRows:       10000,
		AggregateTTL:  30 * time.Second,
		TodayTTL:      15 * time.Second,
	}
}

// newBareStore opens a store without running migrations, for tests that
// build their own schema first.
func newBareStore(t *testing.T) *Store {
	t.Helper()
	cfg := testConfig(t)
	mgr := NewManager(cfg, zap.NewNop())
	store := NewStore(mgr, cfg, zap.NewNop())
	t.Cleanup(func() { _ = mgr.Close() })
	return store
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := newBareStore(t)
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

func insertTestClient(t *testing.T, store *Store, name string, valueCents, paidCents int64) int64 {
	t.Helper()
	status := "pending"
	if paidCents >= valueCents {
		status = "settled"
	}
	id, err := store.RunInsert(context.Background(), `INSERT INTO clients
		(name, value_cents, paid_cents, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		name, valueCents, paidCents, status, nowISO(), nowISO())
	require.NoError(t, err)
	return id
}
