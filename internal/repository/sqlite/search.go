// internal/repository/sqlite/search.go
package sqlite

import (
	"context"
	"strings"

	"crediario-service/internal/domain/client"
	"crediario-service/internal/pkg/textnorm"

	"go.uber.org/zap"
)

const searchDefaultLimit = 50

// ftsSchema is an external-content index over the client fields worth
// searching, kept in step by triggers.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS clients_fts USING fts5(
	name, phone, reference,
	content='clients', content_rowid='id'
);
CREATE TRIGGER IF NOT EXISTS clients_fts_ai AFTER INSERT ON clients BEGIN
	INSERT INTO clients_fts(rowid, name, phone, reference)
	VALUES (new.id, new.name, COALESCE(new.phone, ''), COALESCE(new.reference, ''));
END;
CREATE TRIGGER IF NOT EXISTS clients_fts_ad AFTER DELETE ON clients BEGIN
	INSERT INTO clients_fts(clients_fts, rowid, name, phone, reference)
	VALUES ('delete', old.id, old.name, COALESCE(old.phone, ''), COALESCE(old.reference, ''));
END;
CREATE TRIGGER IF NOT EXISTS clients_fts_au AFTER UPDATE ON clients BEGIN
	INSERT INTO clients_fts(clients_fts, rowid, name, phone, reference)
	VALUES ('delete', old.id, old.name, COALESCE(old.phone, ''), COALESCE(old.reference, ''));
	INSERT INTO clients_fts(rowid, name, phone, reference)
	VALUES (new.id, new.name, COALESCE(new.phone, ''), COALESCE(new.reference, ''));
END;
`

// setupFTS probes the accelerated search path once. Failure only means
// every search takes the LIKE fallback.
func (s *Store) setupFTS(ctx context.Context) {
	s.ftsMu.Lock()
	defer s.ftsMu.Unlock()
	if s.ftsKnown {
		return
	}
	s.ftsKnown = true
	if err := s.Exec(ctx, ftsSchema); err != nil {
		s.log.Info("full-text index unavailable, search will use LIKE fallback", zap.Error(err))
		s.ftsOK = false
		return
	}
	if err := s.Exec(ctx, "INSERT INTO clients_fts(clients_fts) VALUES ('rebuild')"); err != nil {
		s.log.Info("full-text index rebuild failed, search will use LIKE fallback", zap.Error(err))
		s.ftsOK = false
		return
	}
	s.ftsOK = true
}

func (s *Store) ftsAvailable(ctx context.Context) bool {
	s.ftsMu.Lock()
	known, ok := s.ftsKnown, s.ftsOK
	s.ftsMu.Unlock()
	if !known {
		s.setupFTS(ctx)
		s.ftsMu.Lock()
		ok = s.ftsOK
		s.ftsMu.Unlock()
	}
	return ok
}

// SearchClients looks a free-form query up across client, street and
// neighborhood fields. The full-text index is tried first; an empty or
// unavailable result falls back to a case/accent-insensitive LIKE pass.
// Results are always bounded.
func (s *Store) SearchClients(ctx context.Context, query string, limit int) ([]client.Client, error) {
	m := newMapper(s.log, s.cfg.Debug)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > searchDefaultLimit {
		limit = searchDefaultLimit
	}

	if s.ftsAvailable(ctx) {
		if out, err := s.searchFTS(ctx, m, query, limit); err != nil {
			s.log.Warn("full-text search failed, falling back to LIKE", zap.Error(err))
		} else if len(out) > 0 {
			return out, nil
		}
		// zero FTS rows still fall through: prefix matching misses
		// mid-word hits and the index does not cover street names
	}
	return s.searchLike(ctx, m, query, limit)
}

// ftsMatchExpr turns free text into a prefix-match expression, quoting
// each token so user input cannot inject match syntax.
func ftsMatchExpr(query string) string {
	fields := strings.Fields(query)
	toks := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		toks = append(toks, `"`+f+`"*`)
	}
	return strings.Join(toks, " ")
}

func (s *Store) searchFTS(ctx context.Context, m *mapper, query string, limit int) ([]client.Client, error) {
	expr := ftsMatchExpr(query)
	if expr == "" {
		return nil, nil
	}
	rows, err := s.GetAll(ctx,
		"SELECT "+clientColumns+` FROM clients
		 WHERE id IN (SELECT rowid FROM clients_fts WHERE clients_fts MATCH ?)
		 ORDER BY name COLLATE NOCASE LIMIT ?`,
		expr, limit)
	if err != nil {
		return nil, err
	}
	out := make([]client.Client, 0, len(rows))
	for _, row := range rows {
		out = append(out, m.Client(row))
	}
	return out, nil
}

// searchLike stages matching ids as a union per predicate, then joins the
// clients table once, so full rows are never scanned per field.
func (s *Store) searchLike(ctx context.Context, m *mapper, query string, limit int) ([]client.Client, error) {
	pattern := "%" + textnorm.Fold(query) + "%"
	rows, err := s.GetAll(ctx, `
		WITH hits(id) AS (
			SELECT id FROM clients WHERE fold(name) LIKE ?
			UNION SELECT id FROM clients WHERE phone IS NOT NULL AND fold(phone) LIKE ?
			UNION SELECT id FROM clients WHERE reference IS NOT NULL AND fold(reference) LIKE ?
			UNION SELECT id FROM clients WHERE notes IS NOT NULL AND fold(notes) LIKE ?
			UNION SELECT c.id FROM clients c
				JOIN ruas r ON r.id = c.street_id
				WHERE fold(r.nome) LIKE ?
			UNION SELECT c.id FROM clients c
				JOIN ruas r ON r.id = c.street_id
				JOIN bairros b ON b.id = r.bairro_id
				WHERE fold(b.nome) LIKE ?
		)
		SELECT clients.* FROM clients
		JOIN hits ON hits.id = clients.id
		ORDER BY clients.name COLLATE NOCASE LIMIT ?`,
		pattern, pattern, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	out := make([]client.Client, 0, len(rows))
	for _, row := range rows {
		out = append(out, m.Client(row))
	}
	return out, nil
}
