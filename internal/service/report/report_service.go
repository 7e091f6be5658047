// internal/service/report/report_service.go
package report

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"crediario-service/internal/domain/report"
	"crediario-service/internal/repository/sqlite"

	"github.com/oklog/ulid/v2"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	keyAggregates = "totals/aggregates"
	keyToday      = "totals/today"
)

// Service computes dashboard aggregates behind a pair of TTL caches: an
// in-memory one for the hot path and a persisted table that survives
// restarts. It also owns the bulk export and maintenance entry points.
type Service struct {
	store    *sqlite.Store
	cacheRep *sqlite.CacheRepository
	clients  *sqlite.ClientRepository
	payments *sqlite.PaymentRepository
	logs     *sqlite.LogRepository
	routes   *sqlite.RouteRepository
	logger   *zap.Logger

	mem          *gocache.Cache
	aggregateTTL time.Duration
	todayTTL     time.Duration
	entropy      *ulid.MonotonicEntropy
}

func NewService(
	store *sqlite.Store,
	cacheRep *sqlite.CacheRepository,
	clients *sqlite.ClientRepository,
	payments *sqlite.PaymentRepository,
	logs *sqlite.LogRepository,
	routes *sqlite.RouteRepository,
	aggregateTTL, todayTTL time.Duration,
	logger *zap.Logger,
) *Service {
	if aggregateTTL <= 0 {
		aggregateTTL = 30 * time.Second
	}
	if todayTTL <= 0 {
		todayTTL = 15 * time.Second
	}
	return &Service{
		store:        store,
		cacheRep:     cacheRep,
		clients:      clients,
		payments:     payments,
		logs:         logs,
		routes:       routes,
		logger:       logger,
		mem:          gocache.New(aggregateTTL, 2*time.Minute),
		aggregateTTL: aggregateTTL,
		todayTTL:     todayTTL,
		entropy:      ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

type aggregates struct {
	ReceivableCents int64 `json:"receivable_cents"`
	CollectedCents  int64 `json:"collected_cents"`
	MonthCents      int64 `json:"month_cents"`
}

type todayFigures struct {
	TodayCents int64 `json:"today_cents"`
}

// GetTotals returns the aggregate financial figures, recomputing only
// when both cache layers miss.
func (s *Service) GetTotals(ctx context.Context) (report.Totals, error) {
	agg, err := cached(ctx, s, keyAggregates, s.aggregateTTL, s.computeAggregates)
	if err != nil {
		return report.Totals{}, err
	}
	today, err := cached(ctx, s, keyToday, s.todayTTL, s.computeToday)
	if err != nil {
		return report.Totals{}, err
	}
	return report.Totals{
		ReceivableCents:  agg.ReceivableCents,
		CollectedCents:   agg.CollectedCents,
		OutstandingCents: agg.ReceivableCents - agg.CollectedCents,
		TodayCents:       today.TodayCents,
		MonthCents:       agg.MonthCents,
	}, nil
}

// cached checks the in-memory layer, then the persisted mirror, and only
// then recomputes, refilling both layers.
func cached[T any](ctx context.Context, s *Service, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := s.mem.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	if raw, ok, err := s.cacheRep.Get(ctx, key); err == nil && ok {
		var typed T
		if json.Unmarshal([]byte(raw), &typed) == nil {
			s.mem.Set(key, typed, ttl)
			return typed, nil
		}
	} else if err != nil {
		// persisted mirror is best effort
		s.logger.Warn("persisted cache read failed", zap.String("key", key), zap.Error(err))
	}

	typed, err := compute(ctx)
	if err != nil {
		return zero, err
	}
	s.mem.Set(key, typed, ttl)
	if raw, err := json.Marshal(typed); err == nil {
		if err := s.cacheRep.Set(ctx, key, string(raw), ttl); err != nil {
			s.logger.Warn("persisted cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return typed, nil
}

func (s *Service) computeAggregates(ctx context.Context) (aggregates, error) {
	row, err := s.store.GetOne(ctx, `SELECT
		COALESCE(SUM(value_cents), 0) AS receivable,
		COALESCE(SUM(paid_cents), 0) AS collected
		FROM clients`)
	if err != nil {
		return aggregates{}, err
	}
	agg := aggregates{}
	if row != nil {
		agg.ReceivableCents = asInt64(row["receivable"])
		agg.CollectedCents = asInt64(row["collected"])
	}

	monthStart := monthStartISO(time.Now())
	row, err = s.store.GetOne(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) AS n FROM payments WHERE created_at >= ?", monthStart)
	if err != nil {
		return aggregates{}, err
	}
	if row != nil {
		agg.MonthCents = asInt64(row["n"])
	}
	return agg, nil
}

// Payment timestamps are stored in UTC, so both window starts must be
// derived from UTC as well.
func monthStartISO(t time.Time) string {
	return t.UTC().Format("2006-01") + "-01T00:00:00Z"
}

func dayStartISO(t time.Time) string {
	return t.UTC().Format("2006-01-02") + "T00:00:00Z"
}

func (s *Service) computeToday(ctx context.Context) (todayFigures, error) {
	dayStart := dayStartISO(time.Now())
	row, err := s.store.GetOne(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) AS n FROM payments WHERE created_at >= ?", dayStart)
	if err != nil {
		return todayFigures{}, err
	}
	out := todayFigures{}
	if row != nil {
		out.TodayCents = asInt64(row["n"])
	}
	return out, nil
}

// InvalidateTotals drops both cache layers. Called by the write paths
// whenever value or paid fields change.
func (s *Service) InvalidateTotals() {
	s.mem.Delete(keyAggregates)
	s.mem.Delete(keyToday)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cacheRep.Delete(ctx, keyAggregates, keyToday); err != nil {
		s.logger.Warn("persisted cache invalidation failed", zap.Error(err))
	}
}

// Export bulk-reads every domain table into one snapshot for the
// backup/export consumer.
func (s *Service) Export(ctx context.Context) (*report.Snapshot, error) {
	snap := &report.Snapshot{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String(),
		CreatedAt: time.Now().UTC(),
	}
	var err error
	if snap.Clients, err = s.clients.ListAll(ctx); err != nil {
		return nil, err
	}
	if snap.Payments, err = s.payments.ListAll(ctx); err != nil {
		return nil, err
	}
	if snap.Logs, err = s.logs.ListAll(ctx); err != nil {
		return nil, err
	}
	if snap.Bairros, err = s.routes.ListBairros(ctx); err != nil {
		return nil, err
	}
	if snap.Ruas, err = s.routes.ListAllRuas(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// Optimize runs the manual compaction path: checkpoint, planner
// statistics refresh, then vacuum.
func (s *Service) Optimize(ctx context.Context) error {
	if err := s.store.Exec(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return err
	}
	if err := s.store.Exec(ctx, "PRAGMA optimize"); err != nil {
		return err
	}
	return s.store.Exec(ctx, "VACUUM")
}

// HealthCheck probes the connection, reopening it if needed.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.Manager().Healthy(ctx)
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	default:
		return 0
	}
}
