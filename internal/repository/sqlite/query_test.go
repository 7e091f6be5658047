package sqlite

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	xerrors "crediario-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetAllAppliesRowCap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := store.RunInsert(ctx,
			"INSERT INTO bairros (nome, created_at) VALUES (?, ?)",
			fmt.Sprintf("Bairro %02d", i), nowISO())
		require.NoError(t, err)
	}

	small := testConfig(t)
	small.MaxRows = 5
	capped := NewStore(store.Manager(), small, zap.NewNop())

	rows, err := capped.GetAll(ctx, "SELECT id FROM bairros ORDER BY id")
	require.NoError(t, err)
	assert.Len(t, rows, 5)

	// an explicit LIMIT wins over the cap
	rows, err = capped.GetAll(ctx, "SELECT id FROM bairros ORDER BY id LIMIT 8")
	require.NoError(t, err)
	assert.Len(t, rows, 8)

	// placeholder limits are respected too
	rows, err = capped.GetAll(ctx, "SELECT id FROM bairros ORDER BY id LIMIT ?", 7)
	require.NoError(t, err)
	assert.Len(t, rows, 7)
}

func TestGetAllLeavesPragmasAlone(t *testing.T) {
	store := newTestStore(t)
	rows, err := store.GetAll(context.Background(), "PRAGMA table_info(clients)")
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestGetOneMissReturnsNil(t *testing.T) {
	store := newTestStore(t)
	row, err := store.GetOne(context.Background(), "SELECT id FROM clients WHERE id = ?", 999)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestExecClassifiesEngineErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Exec(ctx, "INSERT INTO ruas (bairro_id, nome, created_at) VALUES (?, ?, ?)",
		12345, "Rua Sem Bairro", nowISO())
	require.Error(t, err)

	var dbErr *xerrors.DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.NotEmpty(t, dbErr.Code)
	assert.Contains(t, dbErr.Statement, "INSERT INTO ruas")
	assert.Len(t, dbErr.Params, 3)
}

func TestTruncateStatement(t *testing.T) {
	long := "SELECT " + strings.Repeat("x, ", 200) + "1"
	got := truncateStatement(long)
	assert.LessOrEqual(t, len([]rune(got)), maxStatementLen)

	multi := "SELECT *\n\tFROM   clients"
	assert.Equal(t, "SELECT * FROM clients", truncateStatement(multi))

	accented := "SELECT '" + strings.Repeat("ção", 100) + "'"
	cut := truncateStatement(accented)
	assert.Len(t, []rune(cut), maxStatementLen)
	assert.True(t, utf8.ValidString(cut))
}

func TestParseEngineCode(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"constraint failed: UNIQUE constraint failed: clients.id (1555)", "1555"},
		{"FOREIGN KEY constraint failed (787)", "787"},
		{"SQLITE_BUSY: database is locked", "SQLITE_BUSY"},
		{"something else entirely", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseEngineCode(tt.msg), tt.msg)
	}
}
