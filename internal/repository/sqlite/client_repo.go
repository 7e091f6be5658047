// internal/repository/sqlite/client_repo.go
package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"crediario-service/internal/domain/client"
	xerrors "crediario-service/internal/pkg/errors"
)

const clientColumns = `id, name, phone, reference, value_cents, paid_cents,
	street_id, visit_order, priority, notes, status, next_charge_date,
	last_visit_at, created_at, updated_at`

type ClientRepository struct {
	store *Store
	m     *mapper
}

func NewClientRepository(store *Store) *ClientRepository {
	return &ClientRepository{store: store, m: newMapper(store.log, store.cfg.Debug)}
}

// Insert stores a new client and returns its id.
func (r *ClientRepository) Insert(ctx context.Context, c *client.Client) (int64, error) {
	now := nowISO()
	return r.store.RunInsert(ctx, `INSERT INTO clients
		(name, phone, reference, value_cents, paid_cents, street_id,
		 visit_order, priority, notes, status, next_charge_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Phone, c.Reference, c.ValueCents, c.PaidCents, c.StreetID,
		c.VisitOrder, boolToInt(c.Priority), c.Notes, string(c.Status),
		c.NextChargeDate, now, now)
}

// Update applies the given column values. The caller supplies already
// normalized values; updated_at is always refreshed.
func (r *ClientRepository) Update(ctx context.Context, id int64, sets map[string]any) error {
	query, args := buildClientUpdate(id, sets)
	n, err := r.store.Run(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateTx is Update with a transaction-scoped handle.
func (r *ClientRepository) UpdateTx(ctx context.Context, tx *Tx, id int64, sets map[string]any) error {
	query, args := buildClientUpdate(id, sets)
	return tx.Exec(ctx, query, args...)
}

func buildClientUpdate(id int64, sets map[string]any) (string, []any) {
	cols := make([]string, 0, len(sets)+1)
	args := make([]any, 0, len(sets)+2)
	for _, col := range clientUpdateOrder {
		v, ok := sets[col]
		if !ok {
			continue
		}
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}
	cols = append(cols, "updated_at = ?")
	args = append(args, nowISO(), id)
	return "UPDATE clients SET " + strings.Join(cols, ", ") + " WHERE id = ?", args
}

// deterministic statement shape regardless of map iteration order
var clientUpdateOrder = []string{
	"name", "phone", "reference", "value_cents", "paid_cents", "street_id",
	"visit_order", "priority", "notes", "status", "next_charge_date", "last_visit_at",
}

// Delete removes a client; payments and logs cascade.
func (r *ClientRepository) Delete(ctx context.Context, id int64) error {
	n, err := r.store.Run(ctx, "DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*client.Client, error) {
	row, err := r.store.GetOne(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, xerrors.ErrNotFound
	}
	c := r.m.Client(row)
	return &c, nil
}

// ByIDTx reads a client with a transaction-scoped handle.
func (r *ClientRepository) ByIDTx(ctx context.Context, tx *Tx, id int64) (*client.Client, error) {
	row, err := tx.GetOne(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, xerrors.ErrNotFound
	}
	c := r.m.Client(row)
	return &c, nil
}

// List returns one page ordered by name, plus the total row count.
func (r *ClientRepository) List(ctx context.Context, limit, offset int) (client.Page, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	page := client.Page{Limit: limit, Offset: offset}
	countRow, err := r.store.GetOne(ctx, "SELECT COUNT(*) AS n FROM clients")
	if err != nil {
		return page, err
	}
	page.Total = asInt64(countRow["n"])

	rows, err := r.store.GetAll(ctx,
		"SELECT "+clientColumns+" FROM clients ORDER BY name COLLATE NOCASE LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return page, err
	}
	page.Items = r.mapRows(rows)
	return page, nil
}

// ListAll returns every client, bounded by the query layer's row cap.
func (r *ClientRepository) ListAll(ctx context.Context) ([]client.Client, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT "+clientColumns+" FROM clients ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, err
	}
	return r.mapRows(rows), nil
}

// ByStreet returns a street's clients in visit order.
func (r *ClientRepository) ByStreet(ctx context.Context, streetID int64) ([]client.Client, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE street_id = ? ORDER BY visit_order, name COLLATE NOCASE",
		streetID)
	if err != nil {
		return nil, err
	}
	return r.mapRows(rows), nil
}

// ByDateRange returns pending clients whose next charge falls inside the
// inclusive [from, to] ISO date window.
func (r *ClientRepository) ByDateRange(ctx context.Context, from, to string) ([]client.Client, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT "+clientColumns+` FROM clients
		 WHERE next_charge_date IS NOT NULL AND next_charge_date >= ? AND next_charge_date <= ?
		 ORDER BY next_charge_date, name COLLATE NOCASE`,
		from, to)
	if err != nil {
		return nil, err
	}
	return r.mapRows(rows), nil
}

// UpdatedSince returns clients touched at or after the given instant, the
// read the sync consumer polls with.
func (r *ClientRepository) UpdatedSince(ctx context.Context, since time.Time) ([]client.Client, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE updated_at >= ? ORDER BY updated_at",
		since.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	return r.mapRows(rows), nil
}

// PriorityToday returns the day's visit list: flagged clients plus any
// pending client whose charge is due today or overdue.
func (r *ClientRepository) PriorityToday(ctx context.Context) ([]client.Client, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT "+clientColumns+` FROM clients
		 WHERE status = 'pending' AND (priority = 1 OR (next_charge_date IS NOT NULL AND next_charge_date <= ?))
		 ORDER BY priority DESC, visit_order, name COLLATE NOCASE`,
		todayISO())
	if err != nil {
		return nil, err
	}
	return r.mapRows(rows), nil
}

// CountByStatus reports how many clients are pending vs settled.
func (r *ClientRepository) CountByStatus(ctx context.Context) (pending, settled int64, err error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT status, COUNT(*) AS n FROM clients GROUP BY status")
	if err != nil {
		return 0, 0, err
	}
	for _, row := range rows {
		switch client.Status(asString(row["status"])) {
		case client.StatusPending:
			pending = asInt64(row["n"])
		case client.StatusSettled:
			settled = asInt64(row["n"])
		}
	}
	return pending, settled, nil
}

func (r *ClientRepository) mapRows(rows []map[string]any) []client.Client {
	out := make([]client.Client, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.m.Client(row))
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IsNotFound reports whether err is the repository's miss sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, xerrors.ErrNotFound)
}
