// internal/repository/sqlite/mapper.go
package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crediario-service/internal/domain/client"
	"crediario-service/internal/domain/payment"
	"crediario-service/internal/domain/route"
	"crediario-service/internal/domain/visitlog"

	"go.uber.org/zap"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05Z07:00"
)

func nowISO() string {
	return time.Now().UTC().Format(timeLayout)
}

func todayISO() string {
	return time.Now().Format(dateLayout)
}

// mapper converts raw stored rows into typed domain records. It never
// fails on malformed data: bad values are replaced with safe fallbacks and
// each replacement is logged at debug level when diagnostics are enabled.
type mapper struct {
	log   *zap.Logger
	debug bool
}

func newMapper(log *zap.Logger, debug bool) *mapper {
	return &mapper{log: log, debug: debug}
}

func (m *mapper) reject(table string, id int64, field string, value any) {
	if !m.debug {
		return
	}
	m.log.Debug("normalized malformed column",
		zap.String("table", table),
		zap.Int64("row_id", id),
		zap.String("field", field),
		zap.Any("value", value))
}

// Client decodes one clients row.
func (m *mapper) Client(row map[string]any) client.Client {
	id := asInt64(row["id"])
	c := client.Client{
		ID:   id,
		Name: strings.TrimSpace(asString(row["name"])),
	}

	c.ValueCents = asInt64(row["value_cents"])
	if c.ValueCents < 0 {
		m.reject("clients", id, "value_cents", row["value_cents"])
		c.ValueCents = 0
	}
	c.PaidCents = asInt64(row["paid_cents"])
	if c.PaidCents < 0 {
		m.reject("clients", id, "paid_cents", row["paid_cents"])
		c.PaidCents = 0
	}
	if c.PaidCents > c.ValueCents {
		m.reject("clients", id, "paid_cents", row["paid_cents"])
		c.PaidCents = c.ValueCents
	}

	if phone := collapse(asString(row["phone"])); phone != "" {
		if validPhone(phone) {
			c.Phone = sql.NullString{String: phone, Valid: true}
		} else {
			m.reject("clients", id, "phone", phone)
		}
	}
	if ref := collapse(asString(row["reference"])); ref != "" {
		c.Reference = sql.NullString{String: ref, Valid: true}
	}
	if notes := collapse(asString(row["notes"])); notes != "" {
		c.Notes = sql.NullString{String: notes, Valid: true}
	}

	if sid := asInt64(row["street_id"]); sid > 0 {
		c.StreetID = sql.NullInt64{Int64: sid, Valid: true}
	}
	c.VisitOrder = int(asInt64(row["visit_order"]))
	if c.VisitOrder < 1 {
		if row["visit_order"] != nil {
			m.reject("clients", id, "visit_order", row["visit_order"])
		}
		c.VisitOrder = 1
	}
	c.Priority = asInt64(row["priority"]) == 1

	status := strings.ToLower(strings.TrimSpace(asString(row["status"])))
	switch client.Status(status) {
	case client.StatusPending, client.StatusSettled:
		c.Status = client.Status(status)
	default:
		m.reject("clients", id, "status", row["status"])
		c.Status = client.StatusFor(c.PaidCents, c.ValueCents)
	}

	if raw := collapse(asString(row["next_charge_date"])); raw != "" {
		if d, ok := parseDate(raw); ok {
			c.NextChargeDate = sql.NullString{String: d, Valid: true}
		} else {
			m.reject("clients", id, "next_charge_date", raw)
		}
	}
	if raw := collapse(asString(row["last_visit_at"])); raw != "" {
		if t, ok := parseDateTime(raw); ok {
			c.LastVisitAt = sql.NullTime{Time: t, Valid: true}
		} else {
			m.reject("clients", id, "last_visit_at", raw)
		}
	}
	c.CreatedAt = m.timestamp("clients", id, "created_at", row["created_at"])
	c.UpdatedAt = m.timestamp("clients", id, "updated_at", row["updated_at"])
	return c
}

// Payment decodes one payments row.
func (m *mapper) Payment(row map[string]any) payment.Payment {
	id := asInt64(row["id"])
	p := payment.Payment{
		ID:          id,
		ClientID:    asInt64(row["client_id"]),
		AmountCents: asInt64(row["amount_cents"]),
	}
	if p.AmountCents < 0 {
		m.reject("payments", id, "amount_cents", row["amount_cents"])
		p.AmountCents = 0
	}
	p.CreatedAt = m.timestamp("payments", id, "created_at", row["created_at"])
	return p
}

// LogEntry decodes one logs row.
func (m *mapper) LogEntry(row map[string]any) visitlog.Entry {
	id := asInt64(row["id"])
	return visitlog.Entry{
		ID:          id,
		ClientID:    asInt64(row["client_id"]),
		Description: strings.TrimSpace(asString(row["description"])),
		CreatedAt:   m.timestamp("logs", id, "created_at", row["created_at"]),
	}
}

// Bairro decodes one bairros row.
func (m *mapper) Bairro(row map[string]any) route.Bairro {
	id := asInt64(row["id"])
	return route.Bairro{
		ID:        id,
		Nome:      strings.TrimSpace(asString(row["nome"])),
		CreatedAt: m.timestamp("bairros", id, "created_at", row["created_at"]),
	}
}

// Rua decodes one ruas row.
func (m *mapper) Rua(row map[string]any) route.Rua {
	id := asInt64(row["id"])
	return route.Rua{
		ID:        id,
		BairroID:  asInt64(row["bairro_id"]),
		Nome:      strings.TrimSpace(asString(row["nome"])),
		CreatedAt: m.timestamp("ruas", id, "created_at", row["created_at"]),
	}
}

func (m *mapper) timestamp(table string, id int64, field string, v any) time.Time {
	raw := strings.TrimSpace(asString(v))
	if raw != "" {
		if t, ok := parseDateTime(raw); ok {
			return t
		}
	}
	m.reject(table, id, field, v)
	return time.Now().UTC()
}

// --- raw value coercion ---

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n
	default:
		return 0
	}
}

// collapse trims and turns empty strings into "", the null fallback.
func collapse(s string) string {
	return strings.TrimSpace(s)
}

// --- field validators ---

// validPhone accepts Brazilian-style numbers: enough digits, a plausible
// area code (11-99, second digit nonzero) and not a single repeated digit.
func validPhone(s string) bool {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < 10 || len(digits) > 13 {
		return false
	}
	// strip country prefix
	if len(digits) >= 12 && digits[0] == '5' && digits[1] == '5' {
		digits = digits[2:]
	}
	if len(digits) < 10 {
		return false
	}
	// DDD area codes run 11-99 with a nonzero second digit
	if digits[0] == '0' || digits[1] == '0' {
		return false
	}
	all := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			all = false
			break
		}
	}
	return !all
}

var dateTimeLayouts = []string{
	timeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000Z",
	dateLayout,
}

func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDate validates a real calendar date, rejecting impossible ones
// like day 31 of a 30-day month. Returns the bare ISO date.
func parseDate(s string) (string, bool) {
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", false
	}
	// time.Parse normalizes overflow (2023-02-30 -> 2023-03-02);
	// a changed rendering means the input was not a real date
	if t.Format(dateLayout) != s {
		return "", false
	}
	return s, true
}
