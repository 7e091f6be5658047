package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"crediario-service/internal/domain/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRepositoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	ctx := context.Background()

	in := client.Client{
		Name:           "Carlos Mendes",
		Phone:          sql.NullString{String: "11987654321", Valid: true},
		Reference:      sql.NullString{String: "casa azul", Valid: true},
		ValueCents:     20000,
		PaidCents:      5000,
		VisitOrder:     3,
		Priority:       true,
		Status:         client.StatusPending,
		NextChargeDate: sql.NullString{String: "2026-09-10", Valid: true},
	}
	id, err := repo.Insert(ctx, &in)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Carlos Mendes", got.Name)
	assert.Equal(t, "11987654321", got.Phone.String)
	assert.EqualValues(t, 20000, got.ValueCents)
	assert.EqualValues(t, 5000, got.PaidCents)
	assert.Equal(t, 3, got.VisitOrder)
	assert.True(t, got.Priority)
	assert.Equal(t, client.StatusPending, got.Status)
	assert.Equal(t, "2026-09-10", got.NextChargeDate.String)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestClientRepositoryPartialUpdate(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	ctx := context.Background()

	id := insertTestClient(t, store, "Dona Rosa", 10000, 0)
	before, err := repo.GetByID(ctx, id)
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, id, map[string]any{
		"paid_cents": int64(4000),
		"notes":      "paga sempre em dia",
	}))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 4000, got.PaidCents)
	assert.Equal(t, "paga sempre em dia", got.Notes.String)
	// untouched fields survive
	assert.Equal(t, before.Name, got.Name)
	assert.EqualValues(t, before.ValueCents, got.ValueCents)
}

func TestClientRepositoryDelete(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	ctx := context.Background()

	id := insertTestClient(t, store, "Efêmero", 1000, 0)
	require.NoError(t, repo.Delete(ctx, id))

	_, err := repo.GetByID(ctx, id)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(repo.Delete(ctx, id)))
}

func TestClientRepositoryDeleteCascades(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	ctx := context.Background()

	id := insertTestClient(t, store, "Cascata", 5000, 0)
	_, err := store.RunInsert(ctx,
		"INSERT INTO payments (client_id, amount_cents, created_at) VALUES (?, ?, ?)",
		id, 1000, nowISO())
	require.NoError(t, err)
	_, err = store.RunInsert(ctx,
		"INSERT INTO logs (client_id, description, created_at) VALUES (?, ?, ?)",
		id, "visita", nowISO())
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, id))

	row, err := store.GetOne(ctx, "SELECT COUNT(*) AS n FROM payments WHERE client_id = ?", id)
	require.NoError(t, err)
	assert.EqualValues(t, 0, asInt64(row["n"]))
	row, err = store.GetOne(ctx, "SELECT COUNT(*) AS n FROM logs WHERE client_id = ?", id)
	require.NoError(t, err)
	assert.EqualValues(t, 0, asInt64(row["n"]))
}

func TestClientRepositoryListPagination(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	ctx := context.Background()

	names := []string{"Ana", "bruno", "Clara", "daniel", "Eva"}
	for _, n := range names {
		insertTestClient(t, store, n, 1000, 0)
	}

	page, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	// case-insensitive name order
	assert.Equal(t, "Ana", page.Items[0].Name)
	assert.Equal(t, "bruno", page.Items[1].Name)

	page, err = repo.List(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Eva", page.Items[0].Name)
}

func TestClientRepositoryByStreetOrdersByVisit(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	routes := NewRouteRepository(store)
	ctx := context.Background()

	b, err := routes.CreateBairro(ctx, "Centro")
	require.NoError(t, err)
	rua, err := routes.CreateRua(ctx, b.ID, "Rua das Flores")
	require.NoError(t, err)

	for i, name := range []string{"Terceiro", "Primeiro", "Segundo"} {
		order := []int{3, 1, 2}[i]
		_, err := store.RunInsert(ctx, `INSERT INTO clients
			(name, value_cents, paid_cents, street_id, visit_order, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`,
			name, 1000, 0, rua.ID, order, nowISO(), nowISO())
		require.NoError(t, err)
	}

	got, err := repo.ByStreet(ctx, rua.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Primeiro", got[0].Name)
	assert.Equal(t, "Segundo", got[1].Name)
	assert.Equal(t, "Terceiro", got[2].Name)
}

func TestClientRepositoryByDateRangeInclusive(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	ctx := context.Background()

	dates := map[string]string{
		"Antes":   "2026-09-01",
		"Inicio":  "2026-09-05",
		"Meio":    "2026-09-07",
		"Fim":     "2026-09-10",
		"Depois":  "2026-09-15",
		"SemData": "",
	}
	for name, d := range dates {
		var nd any
		if d != "" {
			nd = d
		}
		_, err := store.RunInsert(ctx, `INSERT INTO clients
			(name, value_cents, paid_cents, status, next_charge_date, created_at, updated_at)
			VALUES (?, 1000, 0, 'pending', ?, ?, ?)`,
			name, nd, nowISO(), nowISO())
		require.NoError(t, err)
	}

	got, err := repo.ByDateRange(ctx, "2026-09-05", "2026-09-10")
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Inicio", "Meio", "Fim"}, names)
}

func TestClientRepositoryPriorityToday(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	ctx := context.Background()

	today := todayISO()
	yesterday := time.Now().AddDate(0, 0, -1).Format(dateLayout)
	nextWeek := time.Now().AddDate(0, 0, 7).Format(dateLayout)

	mustInsert := func(name string, priority int, status string, due any) {
		_, err := store.RunInsert(ctx, `INSERT INTO clients
			(name, value_cents, paid_cents, priority, status, next_charge_date, created_at, updated_at)
			VALUES (?, 1000, 0, ?, ?, ?, ?, ?)`,
			name, priority, status, due, nowISO(), nowISO())
		require.NoError(t, err)
	}
	mustInsert("Prioritario", 1, "pending", nil)
	mustInsert("VenceHoje", 0, "pending", today)
	mustInsert("Atrasado", 0, "pending", yesterday)
	mustInsert("SemanaQueVem", 0, "pending", nextWeek)
	mustInsert("Quitado", 1, "settled", nil)

	got, err := repo.PriorityToday(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "Prioritario")
	assert.Contains(t, names, "VenceHoje")
	assert.Contains(t, names, "Atrasado")
	assert.NotContains(t, names, "SemanaQueVem")
	assert.NotContains(t, names, "Quitado")
	// flagged clients come first
	assert.Equal(t, "Prioritario", names[0])
}

func TestClientRepositoryUpdatedSince(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	ctx := context.Background()

	insertTestClient(t, store, "Antigo", 1000, 0)
	cutoff := time.Now().UTC().Add(-time.Minute)

	got, err := repo.UpdatedSince(ctx, cutoff)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = repo.UpdatedSince(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClientRepositoryCountByStatus(t *testing.T) {
	store := newTestStore(t)
	repo := NewClientRepository(store)
	ctx := context.Background()

	insertTestClient(t, store, "P1", 1000, 0)
	insertTestClient(t, store, "P2", 1000, 500)
	insertTestClient(t, store, "S1", 1000, 1000)

	pending, settled, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)
	assert.EqualValues(t, 1, settled)
}
