package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"crediario-service/internal/config"
	"crediario-service/internal/domain/client"
	"crediario-service/internal/repository/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	svc      *Service
	store    *sqlite.Store
	clients  *sqlite.ClientRepository
	routes   *sqlite.RouteRepository
	cacheRep *sqlite.CacheRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.AppConfig{
		DBPath:        "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		OpenTimeout:   5 * time.Second,
		TxTimeout:     5 * time.Second,
		BusyTimeoutMs: 5000,
		MaxOpenRetry:  3,
		MaxRows:       10000,
		AggregateTTL:  30 * time.Second,
		TodayTTL:      15 * time.Second,
	}
	log := zap.NewNop()
	mgr := sqlite.NewManager(cfg, log)
	store := sqlite.NewStore(mgr, cfg, log)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, store.Initialize(context.Background()))

	clients := sqlite.NewClientRepository(store)
	payments := sqlite.NewPaymentRepository(store)
	logs := sqlite.NewLogRepository(store)
	routes := sqlite.NewRouteRepository(store)
	cacheRep := sqlite.NewCacheRepository(store)
	svc := NewService(store, cacheRep, clients, payments, logs, routes,
		cfg.AggregateTTL, cfg.TodayTTL, log)
	return &env{svc: svc, store: store, clients: clients, routes: routes, cacheRep: cacheRep}
}

func (e *env) seedClient(t *testing.T, name string, valueCents, paidCents int64) int64 {
	t.Helper()
	c := client.Client{
		Name:       name,
		ValueCents: valueCents,
		PaidCents:  paidCents,
		VisitOrder: 1,
		Status:     client.StatusFor(paidCents, valueCents),
	}
	id, err := e.clients.Insert(context.Background(), &c)
	require.NoError(t, err)
	return id
}

func (e *env) seedPayment(t *testing.T, clientID, amountCents int64) {
	t.Helper()
	_, err := e.store.RunInsert(context.Background(),
		"INSERT INTO payments (client_id, amount_cents, created_at) VALUES (?, ?, ?)",
		clientID, amountCents, time.Now().UTC().Format("2006-01-02T15:04:05Z07:00"))
	require.NoError(t, err)
}

func TestGetTotalsComputesAggregates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.seedClient(t, "A", 10000, 2500)
	e.seedClient(t, "B", 5000, 5000)
	e.seedPayment(t, a, 2500)

	totals, err := e.svc.GetTotals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 15000, totals.ReceivableCents)
	assert.EqualValues(t, 7500, totals.CollectedCents)
	assert.EqualValues(t, 7500, totals.OutstandingCents)
	assert.EqualValues(t, 2500, totals.TodayCents)
	assert.EqualValues(t, 2500, totals.MonthCents)
}

func TestGetTotalsEmptyDatabase(t *testing.T) {
	e := newEnv(t)
	totals, err := e.svc.GetTotals(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, totals.ReceivableCents)
	assert.EqualValues(t, 0, totals.OutstandingCents)
	assert.EqualValues(t, 0, totals.TodayCents)
}

func TestGetTotalsServesCachedUntilInvalidated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.seedClient(t, "A", 10000, 0)
	first, err := e.svc.GetTotals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 10000, first.ReceivableCents)

	// a write that bypasses the service is invisible while cached
	e.seedClient(t, "B", 5000, 0)
	cachedTotals, err := e.svc.GetTotals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 10000, cachedTotals.ReceivableCents)

	e.svc.InvalidateTotals()
	fresh, err := e.svc.GetTotals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 15000, fresh.ReceivableCents)
}

func TestGetTotalsMirrorsToPersistedCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.seedClient(t, "A", 10000, 0)
	_, err := e.svc.GetTotals(ctx)
	require.NoError(t, err)

	for _, key := range []string{keyAggregates, keyToday} {
		_, ok, err := e.cacheRep.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "key %s should be mirrored", key)
	}

	e.svc.InvalidateTotals()
	_, ok, err := e.cacheRep.Get(ctx, keyAggregates)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWindowStartsUseUTC(t *testing.T) {
	// 23:00 on Aug 31 in UTC-3 is already Sep 1 in UTC, where the
	// payment timestamps live.
	brt := time.FixedZone("BRT", -3*60*60)
	late := time.Date(2026, 8, 31, 23, 0, 0, 0, brt)

	assert.Equal(t, "2026-09-01T00:00:00Z", monthStartISO(late))
	assert.Equal(t, "2026-09-01T00:00:00Z", dayStartISO(late))

	noon := time.Date(2026, 9, 15, 12, 0, 0, 0, brt)
	assert.Equal(t, "2026-09-01T00:00:00Z", monthStartISO(noon))
	assert.Equal(t, "2026-09-15T00:00:00Z", dayStartISO(noon))
}

func TestExportSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.routes.CreateBairro(ctx, "Centro")
	require.NoError(t, err)
	_, err = e.routes.CreateRua(ctx, b.ID, "Rua Um")
	require.NoError(t, err)
	id := e.seedClient(t, "A", 10000, 0)
	e.seedPayment(t, id, 1000)

	snap, err := e.svc.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.ID, 26)
	assert.False(t, snap.CreatedAt.IsZero())
	assert.Len(t, snap.Clients, 1)
	assert.Len(t, snap.Payments, 1)
	assert.Len(t, snap.Bairros, 1)
	assert.Len(t, snap.Ruas, 1)

	// snapshot ids are unique and monotonic
	again, err := e.svc.Export(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, snap.ID, again.ID)
}

func TestOptimizeRuns(t *testing.T) {
	e := newEnv(t)
	e.seedClient(t, "A", 10000, 0)
	require.NoError(t, e.svc.Optimize(context.Background()))
}

func TestHealthCheck(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.svc.HealthCheck(context.Background()))
}
