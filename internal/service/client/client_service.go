// internal/service/client/client_service.go
package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crediario-service/internal/domain/client"
	xerrors "crediario-service/internal/pkg/errors"
	"crediario-service/internal/pkg/textnorm"
	"crediario-service/internal/repository/sqlite"

	"go.uber.org/zap"
)

const maxNameLen = 120

// Invalidator is the cache hook called after writes that move money
// fields. The report service implements it.
type Invalidator interface {
	InvalidateTotals()
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateTotals() {}

type Service struct {
	store   *sqlite.Store
	clients *sqlite.ClientRepository
	logs    *sqlite.LogRepository
	inval   Invalidator
	logger  *zap.Logger
}

func NewService(
	store *sqlite.Store,
	clients *sqlite.ClientRepository,
	logs *sqlite.LogRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:   store,
		clients: clients,
		logs:    logs,
		inval:   noopInvalidator{},
		logger:  logger,
	}
}

// SetInvalidator wires the cache hook after construction.
func (s *Service) SetInvalidator(inv Invalidator) {
	if inv != nil {
		s.inval = inv
	}
}

const dateLayout = "2006-01-02"

// AddClient validates and stores a new client record.
func (s *Service) AddClient(ctx context.Context, in client.CreateInput) (*client.Client, error) {
	name := textnorm.Sanitize(in.Name, maxNameLen)
	if name == "" {
		return nil, xerrors.NewValidation("name", "name is required")
	}
	if in.ValueCents < 0 {
		return nil, xerrors.NewValidation("value_cents", "total value cannot be negative")
	}
	if in.PaidCents < 0 || in.PaidCents > in.ValueCents {
		return nil, xerrors.NewValidation("paid_cents", "paid total must be between 0 and the total value")
	}
	if in.NextChargeDate != "" {
		if _, err := time.Parse(dateLayout, in.NextChargeDate); err != nil {
			return nil, xerrors.NewValidation("next_charge_date", "must be an ISO calendar date")
		}
	}

	c := client.Client{
		Name:       name,
		ValueCents: in.ValueCents,
		PaidCents:  in.PaidCents,
		VisitOrder: in.VisitOrder,
		Priority:   in.Priority,
		Status:     client.StatusFor(in.PaidCents, in.ValueCents),
	}
	if c.VisitOrder < 1 {
		c.VisitOrder = 1
	}
	setNullString(&c.Phone, textnorm.Sanitize(in.Phone, 20))
	setNullString(&c.Reference, textnorm.Sanitize(in.Reference, maxNameLen))
	setNullString(&c.Notes, strings.TrimSpace(in.Notes))
	if in.StreetID != nil && *in.StreetID > 0 {
		c.StreetID.Int64, c.StreetID.Valid = *in.StreetID, true
	}
	if c.Status == client.StatusPending {
		setNullString(&c.NextChargeDate, in.NextChargeDate)
	}

	id, err := s.clients.Insert(ctx, &c)
	if err != nil {
		return nil, err
	}

	if err := s.logs.Add(ctx, id, fmt.Sprintf("client created with total %d cents", c.ValueCents)); err != nil {
		s.logger.Warn("audit log write failed", zap.Int64("client_id", id), zap.Error(err))
	}
	s.inval.InvalidateTotals()
	return s.clients.GetByID(ctx, id)
}

// UpdateClient applies a partial update. Only supplied fields are
// normalized and written; money changes recompute the status and a
// settled client loses its next charge date. The change set is audited.
func (s *Service) UpdateClient(ctx context.Context, id int64, in client.UpdateInput) (*client.Client, error) {
	if in.Empty() {
		return nil, xerrors.NewValidation("", "no fields to update")
	}
	existing, err := s.clients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sets := map[string]any{}
	var changes []string

	if in.Name != nil {
		name := textnorm.Sanitize(*in.Name, maxNameLen)
		if name == "" {
			return nil, xerrors.NewValidation("name", "name is required")
		}
		if name != existing.Name {
			sets["name"] = name
			changes = append(changes, fmt.Sprintf("name %q -> %q", existing.Name, name))
		}
	}
	if in.Phone != nil {
		phone := textnorm.Sanitize(*in.Phone, 20)
		sets["phone"] = nullable(phone)
		changes = append(changes, "phone updated")
	}
	if in.Reference != nil {
		sets["reference"] = nullable(textnorm.Sanitize(*in.Reference, maxNameLen))
		changes = append(changes, "reference updated")
	}
	if in.Notes != nil {
		sets["notes"] = nullable(strings.TrimSpace(*in.Notes))
		changes = append(changes, "notes updated")
	}
	if in.VisitOrder != nil {
		order := *in.VisitOrder
		if order < 1 {
			order = 1
		}
		sets["visit_order"] = order
		changes = append(changes, fmt.Sprintf("visit order %d -> %d", existing.VisitOrder, order))
	}
	if in.Priority != nil {
		v := 0
		if *in.Priority {
			v = 1
		}
		sets["priority"] = v
		changes = append(changes, fmt.Sprintf("priority -> %v", *in.Priority))
	}
	if in.StreetID != nil {
		if *in.StreetID == nil {
			sets["street_id"] = nil
			changes = append(changes, "street detached")
		} else {
			sets["street_id"] = **in.StreetID
			changes = append(changes, fmt.Sprintf("street -> %d", **in.StreetID))
		}
	}

	value := existing.ValueCents
	paid := existing.PaidCents
	moneyChanged := false
	if in.ValueCents != nil {
		if *in.ValueCents < 0 {
			return nil, xerrors.NewValidation("value_cents", "total value cannot be negative")
		}
		value = *in.ValueCents
		moneyChanged = true
	}
	if in.PaidCents != nil {
		if *in.PaidCents < 0 {
			return nil, xerrors.NewValidation("paid_cents", "paid total cannot be negative")
		}
		paid = *in.PaidCents
		moneyChanged = true
	}
	if paid > value {
		return nil, xerrors.NewValidation("paid_cents", "paid total cannot exceed the total value")
	}
	status := existing.Status
	if moneyChanged {
		sets["value_cents"] = value
		sets["paid_cents"] = paid
		status = client.StatusFor(paid, value)
		sets["status"] = string(status)
		changes = append(changes, fmt.Sprintf("totals %d/%d -> %d/%d",
			existing.PaidCents, existing.ValueCents, paid, value))
	}

	if in.NextChargeDate != nil {
		if *in.NextChargeDate == nil {
			sets["next_charge_date"] = nil
			changes = append(changes, "next charge cleared")
		} else {
			d := **in.NextChargeDate
			if _, err := time.Parse(dateLayout, d); err != nil {
				return nil, xerrors.NewValidation("next_charge_date", "must be an ISO calendar date")
			}
			sets["next_charge_date"] = d
			changes = append(changes, "next charge -> "+d)
		}
	}
	// a fully paid client has nothing scheduled
	if status == client.StatusSettled {
		sets["next_charge_date"] = nil
	}

	if len(sets) > 0 {
		if err := s.clients.Update(ctx, id, sets); err != nil {
			return nil, err
		}
	}

	if len(changes) > 0 {
		if err := s.logs.Add(ctx, id, "client updated: "+strings.Join(changes, "; ")); err != nil {
			s.logger.Warn("audit log write failed", zap.Int64("client_id", id), zap.Error(err))
		}
	}
	if moneyChanged {
		s.inval.InvalidateTotals()
	}
	return s.clients.GetByID(ctx, id)
}

// DeleteClient removes a client; its payments and logs cascade away.
func (s *Service) DeleteClient(ctx context.Context, id int64) error {
	if err := s.clients.Delete(ctx, id); err != nil {
		return err
	}
	s.inval.InvalidateTotals()
	return nil
}

// GetClientByID returns nil without error when the client is missing;
// lookup misses are not failures.
func (s *Service) GetClientByID(ctx context.Context, id int64) (*client.Client, error) {
	c, err := s.clients.GetByID(ctx, id)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func (s *Service) GetAllClients(ctx context.Context) ([]client.Client, error) {
	return s.clients.ListAll(ctx)
}

func (s *Service) GetClientsPage(ctx context.Context, limit, offset int) (client.Page, error) {
	return s.clients.List(ctx, limit, offset)
}

func (s *Service) GetClientsByStreet(ctx context.Context, streetID int64) ([]client.Client, error) {
	return s.clients.ByStreet(ctx, streetID)
}

func (s *Service) GetClientsByDateRange(ctx context.Context, from, to string) ([]client.Client, error) {
	if _, err := time.Parse(dateLayout, from); err != nil {
		return nil, xerrors.NewValidation("from", "must be an ISO calendar date")
	}
	if _, err := time.Parse(dateLayout, to); err != nil {
		return nil, xerrors.NewValidation("to", "must be an ISO calendar date")
	}
	return s.clients.ByDateRange(ctx, from, to)
}

func (s *Service) GetClientsUpdatedSince(ctx context.Context, since time.Time) ([]client.Client, error) {
	return s.clients.UpdatedSince(ctx, since)
}

func (s *Service) GetPriorityToday(ctx context.Context) ([]client.Client, error) {
	return s.clients.PriorityToday(ctx)
}

// Search delegates to the store's FTS-or-LIKE search path.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]client.Client, error) {
	return s.store.SearchClients(ctx, query, limit)
}

func setNullString(dst *sql.NullString, v string) {
	if v != "" {
		dst.String, dst.Valid = v, true
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
