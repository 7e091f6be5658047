// internal/repository/sqlite/payment_repo.go
package sqlite

import (
	"context"

	"crediario-service/internal/domain/payment"
	xerrors "crediario-service/internal/pkg/errors"
)

const paymentColumns = "id, client_id, amount_cents, created_at"

type PaymentRepository struct {
	store *Store
	m     *mapper
}

func NewPaymentRepository(store *Store) *PaymentRepository {
	return &PaymentRepository{store: store, m: newMapper(store.log, store.cfg.Debug)}
}

// InsertTx appends a ledger entry inside the caller's transaction.
func (r *PaymentRepository) InsertTx(ctx context.Context, tx *Tx, clientID, amountCents int64) (int64, error) {
	return tx.InsertID(ctx,
		"INSERT INTO payments (client_id, amount_cents, created_at) VALUES (?, ?, ?)",
		clientID, amountCents, nowISO())
}

// ByIDTx reads one ledger entry inside the caller's transaction.
func (r *PaymentRepository) ByIDTx(ctx context.Context, tx *Tx, id int64) (*payment.Payment, error) {
	row, err := tx.GetOne(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, xerrors.ErrNotFound
	}
	p := r.m.Payment(row)
	return &p, nil
}

// DeleteTx removes one ledger entry inside the caller's transaction.
func (r *PaymentRepository) DeleteTx(ctx context.Context, tx *Tx, id int64) error {
	return tx.Exec(ctx, "DELETE FROM payments WHERE id = ?", id)
}

// ByClient returns a client's payments, most recent first.
func (r *PaymentRepository) ByClient(ctx context.Context, clientID int64) ([]payment.Payment, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE client_id = ? ORDER BY created_at DESC, id DESC",
		clientID)
	if err != nil {
		return nil, err
	}
	out := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.m.Payment(row))
	}
	return out, nil
}

// ListAll returns the whole ledger, bounded by the row cap. Used by the
// backup exporter.
func (r *PaymentRepository) ListAll(ctx context.Context) ([]payment.Payment, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT "+paymentColumns+" FROM payments ORDER BY id")
	if err != nil {
		return nil, err
	}
	out := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.m.Payment(row))
	}
	return out, nil
}
