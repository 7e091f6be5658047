// internal/repository/sqlite/tx.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	xerrors "crediario-service/internal/pkg/errors"

	"github.com/jmoiron/sqlx"
)

// Tx is the statement surface handed to a transaction body. It exposes no
// way to begin another transaction, so nesting is impossible by
// construction. Engine errors surface verbatim so the body can abort.
type Tx struct {
	tx *sqlx.Tx
}

// Exec runs a statement discarding any result.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return classify(err, query, args)
	}
	return nil
}

// InsertID runs an INSERT and reports the last inserted row id.
func (t *Tx) InsertID(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
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
func (t *Tx) GetOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	row := t.tx.QueryRowxContext(ctx, query, args...)
	out := map[string]any{}
	if err := row.MapScan(out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err, query, args)
	}
	return out, nil
}

// GetAll fetches every matching raw row. No row cap inside a transaction;
// transactional reads are targeted by construction.
func (t *Tx) GetAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := t.tx.QueryxContext(ctx, query, args...)
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
	return out, nil
}

// RunTransaction executes fn with a transaction-scoped handle using the
// configured default timeout. Statements commit atomically on success and
// roll back entirely on any error or panic.
func (s *Store) RunTransaction(ctx context.Context, fn func(*Tx) error) error {
	return s.RunTransactionTimeout(ctx, s.cfg.TxTimeout, fn)
}

// RunTransactionTimeout is RunTransaction with a per-call timeout racing
// the transaction. Once the deadline passes every statement fails and the
// transaction rolls back; the caller must assume nothing persisted.
func (s *Store) RunTransactionTimeout(ctx context.Context, timeout time.Duration, fn func(*Tx) error) error {
	db, err := s.mgr.Open(ctx)
	if err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w: %v (rollback also failed: %v)", xerrors.ErrTxFailed, err, rbErr)
		}
		// once the deadline passes the engine reports the dead
		// transaction, not the deadline; check the context too
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", xerrors.ErrTxTimeout, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", xerrors.ErrTxTimeout, err)
		}
		return fmt.Errorf("%w: commit: %v", xerrors.ErrTxFailed, err)
	}
	return nil
}
