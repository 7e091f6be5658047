package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSearchFixtures(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	routes := NewRouteRepository(store)

	b, err := routes.CreateBairro(ctx, "São José")
	require.NoError(t, err)
	rua, err := routes.CreateRua(ctx, b.ID, "Avenida Brasil")
	require.NoError(t, err)

	rows := []struct {
		name, phone, reference, notes string
		street                        any
	}{
		{"João da Silva", "11987654321", "portão verde", "", rua.ID},
		{"Maria Conceição", "21912345678", "", "prefere visitas à tarde", nil},
		{"Pedro Alves", "", "mercadinho do zé", "", nil},
	}
	for _, r := range rows {
		_, err := store.RunInsert(ctx, `INSERT INTO clients
			(name, phone, reference, notes, street_id, value_cents, paid_cents, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1000, 0, 'pending', ?, ?)`,
			r.name, nullIfEmpty(r.phone), nullIfEmpty(r.reference), nullIfEmpty(r.notes),
			r.street, nowISO(), nowISO())
		require.NoError(t, err)
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func TestSearchClientsAccentInsensitive(t *testing.T) {
	store := newTestStore(t)
	seedSearchFixtures(t, store)
	ctx := context.Background()

	// unaccented input must match the accented stored name
	got, err := store.SearchClients(ctx, "joao", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "João da Silva", got[0].Name)

	got, err = store.SearchClients(ctx, "conceicao", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Maria Conceição", got[0].Name)
}

func TestSearchClientsAcrossFields(t *testing.T) {
	store := newTestStore(t)
	seedSearchFixtures(t, store)
	ctx := context.Background()

	// phone digits
	got, err := store.SearchClients(ctx, "11987654321", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "João da Silva", got[0].Name)

	// reference text
	got, err = store.SearchClients(ctx, "mercadinho", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Pedro Alves", got[0].Name)

	// notes only come from the LIKE path
	got, err = store.SearchClients(ctx, "tarde", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Maria Conceição", got[0].Name)

	// street and neighborhood names reach their clients
	got, err = store.SearchClients(ctx, "avenida brasil", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "João da Silva", got[0].Name)

	got, err = store.SearchClients(ctx, "sao jose", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "João da Silva", got[0].Name)
}

func TestSearchClientsBlankAndMiss(t *testing.T) {
	store := newTestStore(t)
	seedSearchFixtures(t, store)
	ctx := context.Background()

	got, err := store.SearchClients(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.SearchClients(ctx, "ninguem com esse nome", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchClientsBoundsResults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < searchDefaultLimit+10; i++ {
		insertTestClient(t, store, fmt.Sprintf("Cliente %03d", i), 1000, 0)
	}

	got, err := store.SearchClients(ctx, "cliente", 0)
	require.NoError(t, err)
	assert.Len(t, got, searchDefaultLimit)

	got, err = store.SearchClients(ctx, "cliente", 5)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestFTSMatchExprQuotesTokens(t *testing.T) {
	assert.Equal(t, `"joao"* "silva"*`, ftsMatchExpr("joao silva"))
	assert.Equal(t, `"semaspas"*`, ftsMatchExpr(`sem"aspas`))
	assert.Equal(t, "", ftsMatchExpr("   "))
}
