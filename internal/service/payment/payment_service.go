// internal/service/payment/payment_service.go
package payment

import (
	"context"
	"fmt"
	"time"

	"crediario-service/internal/domain/client"
	"crediario-service/internal/domain/payment"
	xerrors "crediario-service/internal/pkg/errors"
	"crediario-service/internal/repository/sqlite"

	"go.uber.org/zap"
)

// Invalidator is the narrow cache hook repositories of money state call
// after a write. The report service implements it.
type Invalidator interface {
	InvalidateTotals()
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateTotals() {}

type Service struct {
	store    *sqlite.Store
	clients  *sqlite.ClientRepository
	payments *sqlite.PaymentRepository
	logs     *sqlite.LogRepository
	inval    Invalidator
	logger   *zap.Logger
}

func NewService(
	store *sqlite.Store,
	clients *sqlite.ClientRepository,
	payments *sqlite.PaymentRepository,
	logs *sqlite.LogRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:    store,
		clients:  clients,
		payments: payments,
		logs:     logs,
		inval:    noopInvalidator{},
		logger:   logger,
	}
}

// SetInvalidator wires the cache hook after construction, breaking the
// service/report construction cycle.
func (s *Service) SetInvalidator(inv Invalidator) {
	if inv != nil {
		s.inval = inv
	}
}

const dateLayout = "2006-01-02"

// AddPayment applies a payment atomically: read balances, validate,
// append the ledger entry, update the client, audit. A partial payment
// without a next charge date is rejected before anything is written.
func (s *Service) AddPayment(ctx context.Context, in payment.AddInput) (*payment.Payment, error) {
	if in.AmountCents <= 0 {
		return nil, xerrors.NewValidation("amount_cents", "payment amount must be positive")
	}
	if in.NextChargeDate != "" {
		if _, err := time.Parse(dateLayout, in.NextChargeDate); err != nil {
			return nil, xerrors.NewValidation("next_charge_date", "must be an ISO calendar date")
		}
	}

	var created payment.Payment
	err := s.store.RunTransaction(ctx, func(tx *sqlite.Tx) error {
		c, err := s.clients.ByIDTx(ctx, tx, in.ClientID)
		if err != nil {
			return err
		}

		before := c.PaidCents
		newPaid := c.PaidCents + in.AmountCents
		if newPaid > c.ValueCents {
			// the ledger keeps the full amount; the stored balance
			// saturates at the total so paid <= value always holds
			newPaid = c.ValueCents
		}
		status := client.StatusFor(newPaid, c.ValueCents)
		if status == client.StatusPending && in.NextChargeDate == "" {
			return xerrors.NewValidation("next_charge_date", "partial payment requires a next charge date")
		}

		id, err := s.payments.InsertTx(ctx, tx, c.ID, in.AmountCents)
		if err != nil {
			return err
		}

		sets := map[string]any{
			"paid_cents": newPaid,
			"status":     string(status),
		}
		if status == client.StatusSettled {
			sets["next_charge_date"] = nil
		} else {
			sets["next_charge_date"] = in.NextChargeDate
		}
		if err := s.clients.UpdateTx(ctx, tx, c.ID, sets); err != nil {
			return err
		}

		desc := fmt.Sprintf("payment of %d cents applied (paid %d -> %d of %d)",
			in.AmountCents, before, newPaid, c.ValueCents)
		if err := s.logs.AddTx(ctx, tx, c.ID, desc); err != nil {
			// audit is a side effect, never the reason a payment fails
			s.logger.Warn("audit log write failed", zap.Int64("client_id", c.ID), zap.Error(err))
		}

		created = payment.Payment{
			ID:          id,
			ClientID:    c.ID,
			AmountCents: in.AmountCents,
			CreatedAt:   time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.inval.InvalidateTotals()
	return &created, nil
}

// DeletePayment reverses a ledger entry: the client's paid total drops by
// the amount (never below zero) and the status is recomputed, atomically.
func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	err := s.store.RunTransaction(ctx, func(tx *sqlite.Tx) error {
		p, err := s.payments.ByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		c, err := s.clients.ByIDTx(ctx, tx, p.ClientID)
		if err != nil {
			return err
		}

		newPaid := c.PaidCents - p.AmountCents
		if newPaid < 0 {
			newPaid = 0
		}
		status := client.StatusFor(newPaid, c.ValueCents)

		if err := s.payments.DeleteTx(ctx, tx, p.ID); err != nil {
			return err
		}
		if err := s.clients.UpdateTx(ctx, tx, c.ID, map[string]any{
			"paid_cents": newPaid,
			"status":     string(status),
		}); err != nil {
			return err
		}

		desc := fmt.Sprintf("payment of %d cents reversed (paid %d -> %d of %d)",
			p.AmountCents, c.PaidCents, newPaid, c.ValueCents)
		if err := s.logs.AddTx(ctx, tx, c.ID, desc); err != nil {
			s.logger.Warn("audit log write failed", zap.Int64("client_id", c.ID), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.inval.InvalidateTotals()
	return nil
}

// MarkAbsent records a visit where nobody answered: the next charge moves
// to tomorrow and the visit timestamp is stamped.
func (s *Service) MarkAbsent(ctx context.Context, clientID int64) error {
	tomorrow := time.Now().AddDate(0, 0, 1).Format(dateLayout)
	err := s.store.RunTransaction(ctx, func(tx *sqlite.Tx) error {
		c, err := s.clients.ByIDTx(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if c.Status == client.StatusSettled {
			return xerrors.NewValidation("client_id", "settled clients have no charge to reschedule")
		}
		if err := s.clients.UpdateTx(ctx, tx, c.ID, map[string]any{
			"next_charge_date": tomorrow,
			"last_visit_at":    time.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		}); err != nil {
			return err
		}
		if err := s.logs.AddTx(ctx, tx, c.ID, "client absent, charge rescheduled to "+tomorrow); err != nil {
			s.logger.Warn("audit log write failed", zap.Int64("client_id", c.ID), zap.Error(err))
		}
		return nil
	})
	return err
}

// GetPaymentsByClient lists a client's ledger, most recent first.
func (s *Service) GetPaymentsByClient(ctx context.Context, clientID int64) ([]payment.Payment, error) {
	return s.payments.ByClient(ctx, clientID)
}
