// internal/repository/sqlite/query.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"crediario-service/internal/config"
	xerrors "crediario-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// Store is the non-transactional statement surface shared by every
// repository. It borrows the handle from the Manager on each call.
type Store struct {
	mgr *Manager
	cfg config.AppConfig
	log *zap.Logger

	initMu      sync.Mutex
	initPending *initAttempt
	initialized bool

	ftsMu    sync.Mutex
	ftsKnown bool
	ftsOK    bool
}

func NewStore(mgr *Manager, cfg config.AppConfig, log *zap.Logger) *Store {
	return &Store{mgr: mgr, cfg: cfg, log: log}
}

// Manager exposes the connection manager for health checks and shutdown.
func (s *Store) Manager() *Manager { return s.mgr }

// Exec runs a statement discarding any result.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	db, err := s.mgr.Open(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return classify(err, query, args)
	}
	return nil
}

// Run runs a statement and reports the number of affected rows.
func (s *Store) Run(ctx context.Context, query string, args ...any) (int64, error) {
	db, err := s.mgr.Open(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err, query, args)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, query, args)
	}
	return n, nil
}

// RunInsert runs an INSERT and reports the last inserted row id.
func (s *Store) RunInsert(ctx context.Context, query string, args ...any) (int64, error) {
	db, err := s.mgr.Open(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err, query, args)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, classify(err, query, args)
	}
	return id, nil
}

// GetOne fetches a single raw row, or nil when the query matches nothing.
func (s *Store) GetOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	db, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	row := db.QueryRowxContext(ctx, query, args...)
	out := map[string]any{}
	if err := row.MapScan(out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err, query, args)
	}
	return out, nil
}

var limitClause = regexp.MustCompile(`(?i)\blimit\s+[0-9?]`)

// cappable reports whether the statement is a row-returning query the
// cap may legally be appended to. PRAGMA and other introspection
// statements reject a LIMIT clause.
func cappable(query string) bool {
	head := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}

// GetAll fetches raw rows. Statements without a LIMIT get the configured
// row cap appended; a truncated result is logged, never silent.
func (s *Store) GetAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	db, err := s.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	rowCap := s.cfg.MaxRows
	capped := false
	q := query
	if rowCap > 0 && cappable(query) && !limitClause.MatchString(query) {
		// one extra row so truncation is detectable
		q = query + " LIMIT " + strconv.Itoa(rowCap+1)
		capped = true
	}
	rows, err := db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err, query, args)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, classify(err, query, args)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, query, args)
	}
	if capped && len(out) > rowCap {
		out = out[:rowCap]
		s.log.Warn("row cap truncated result set",
			zap.Int("cap", rowCap), zap.String("statement", truncateStatement(query)))
	}
	return out, nil
}

const maxStatementLen = 200

func truncateStatement(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if r := []rune(q); len(r) > maxStatementLen {
		return string(r[:maxStatementLen])
	}
	return q
}

// engine messages end with a parenthesized numeric code, e.g.
// "constraint failed: UNIQUE constraint failed: clients.id (1555)";
// older forms lead with an SQLITE_* token.
var (
	trailingCode = regexp.MustCompile(`\((\d+)\)\s*$`)
	sqliteToken  = regexp.MustCompile(`SQLITE_[A-Z_]+`)
)

func parseEngineCode(msg string) string {
	if m := trailingCode.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := sqliteToken.FindString(msg); m != "" {
		return m
	}
	return ""
}

// classify wraps an engine failure with its parsed code, a truncated copy
// of the statement and the bound parameters.
func classify(err error, query string, params []any) error {
	if err == nil {
		return nil
	}
	return &xerrors.DatabaseError{
		Code:      parseEngineCode(err.Error()),
		Statement: truncateStatement(query),
		Params:    params,
		Err:       err,
	}
}
