// internal/repository/sqlite/log_repo.go
package sqlite

import (
	"context"

	"crediario-service/internal/domain/visitlog"

	"go.uber.org/zap"
)

type LogRepository struct {
	store *Store
	m     *mapper
}

func NewLogRepository(store *Store) *LogRepository {
	return &LogRepository{store: store, m: newMapper(store.log, store.cfg.Debug)}
}

// Add appends an audit entry and prunes the client's history to the
// retention cap. Callers treat a failure here as non-fatal.
func (r *LogRepository) Add(ctx context.Context, clientID int64, description string) error {
	if _, err := r.store.RunInsert(ctx,
		"INSERT INTO logs (client_id, description, created_at) VALUES (?, ?, ?)",
		clientID, description, nowISO()); err != nil {
		return err
	}
	return r.prune(ctx, clientID)
}

// AddTx appends an audit entry inside the caller's transaction.
func (r *LogRepository) AddTx(ctx context.Context, tx *Tx, clientID int64, description string) error {
	if err := tx.Exec(ctx,
		"INSERT INTO logs (client_id, description, created_at) VALUES (?, ?, ?)",
		clientID, description, nowISO()); err != nil {
		return err
	}
	return tx.Exec(ctx, pruneLogsSQL, clientID, clientID, visitlog.KeepPerClient)
}

const pruneLogsSQL = `DELETE FROM logs
	WHERE client_id = ?
	  AND id NOT IN (SELECT id FROM logs WHERE client_id = ? ORDER BY id DESC LIMIT ?)`

func (r *LogRepository) prune(ctx context.Context, clientID int64) error {
	n, err := r.store.Run(ctx, pruneLogsSQL, clientID, clientID, visitlog.KeepPerClient)
	if err != nil {
		return err
	}
	if n > 0 {
		r.store.log.Debug("pruned old log entries",
			zap.Int64("client_id", clientID), zap.Int64("removed", n))
	}
	return nil
}

// ByClient returns a client's audit trail, most recent first.
func (r *LogRepository) ByClient(ctx context.Context, clientID int64) ([]visitlog.Entry, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT id, client_id, description, created_at FROM logs WHERE client_id = ? ORDER BY id DESC",
		clientID)
	if err != nil {
		return nil, err
	}
	out := make([]visitlog.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.m.LogEntry(row))
	}
	return out, nil
}

// ListAll returns every audit entry, for the backup exporter.
func (r *LogRepository) ListAll(ctx context.Context) ([]visitlog.Entry, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT id, client_id, description, created_at FROM logs ORDER BY id")
	if err != nil {
		return nil, err
	}
	out := make([]visitlog.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.m.LogEntry(row))
	}
	return out, nil
}
