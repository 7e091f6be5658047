// internal/repository/sqlite/migrate.go
package sqlite

import (
	"context"
	"fmt"
	"strings"

	xerrors "crediario-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// initAttempt is one in-flight initialization shared by concurrent
// startup callers. err is written before done is closed.
type initAttempt struct {
	done chan struct{}
	err  error
}

// Initialize brings the database to the current schema version. It is
// idempotent and safe under startup races: a flag plus a shared in-flight
// attempt guarantee at most one concurrent run.
func (s *Store) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	if s.initialized {
		s.initMu.Unlock()
		return nil
	}
	if s.initPending == nil {
		attempt := &initAttempt{done: make(chan struct{})}
		s.initPending = attempt
		go func() {
			err := s.initialize(context.Background())
			s.initMu.Lock()
			if err == nil {
				s.initialized = true
			}
			s.initPending = nil
			attempt.err = err
			s.initMu.Unlock()
			close(attempt.done)
		}()
	}
	attempt := s.initPending
	s.initMu.Unlock()

	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.mgr.Open(ctx); err != nil {
		return err
	}
	if err := s.Exec(ctx, baseSchema); err != nil {
		return xerrors.Wrap(err, "create base schema")
	}

	version, err := s.userVersion(ctx)
	if err != nil {
		return err
	}
	s.log.Info("schema check", zap.Int("user_version", version), zap.Int("current", schemaVersionCurrent))

	for version < schemaVersionCurrent {
		next := nextVersion(version)
		if err := s.applyMigration(ctx, next); err != nil {
			return fmt.Errorf("migration to v%d: %w", next, err)
		}
		version = next
		s.log.Info("migration applied", zap.Int("user_version", version))
	}

	// indexes are batch-created after migrations so builds never
	// interleave with table rewrites
	if err := s.Exec(ctx, indexSchema); err != nil {
		return xerrors.Wrap(err, "create indexes")
	}

	if err := s.verifyForeignKeys(ctx); err != nil {
		return err
	}

	// optional accelerated search path; a failure here only disables FTS
	s.setupFTS(ctx)

	// drop persisted cache rows that expired while the app was closed
	if _, err := s.Run(ctx, "DELETE FROM cache_entries WHERE expires_at < ?", nowISO()); err != nil {
		s.log.Warn("expired cache cleanup failed", zap.Error(err))
	}
	return nil
}

// nextVersion maps the strictly-forward version chain 0 -> 2 -> 3 -> 4.
func nextVersion(v int) int {
	if v < 2 {
		return 2
	}
	return v + 1
}

func (s *Store) applyMigration(ctx context.Context, version int) error {
	switch version {
	case 2:
		return s.migrateV2(ctx)
	case 3:
		return s.migrateV3(ctx)
	case 4:
		return s.migrateV4(ctx)
	default:
		return fmt.Errorf("unknown schema version %d", version)
	}
}

func (s *Store) userVersion(ctx context.Context) (int, error) {
	row, err := s.GetOne(ctx, "PRAGMA user_version")
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return int(asInt64(row["user_version"])), nil
}

// verifyForeignKeys is the referential-integrity self-check: fatal when
// the enforcement flag did not take effect.
func (s *Store) verifyForeignKeys(ctx context.Context) error {
	row, err := s.GetOne(ctx, "PRAGMA foreign_keys")
	if err != nil {
		return err
	}
	if row == nil || asInt64(row["foreign_keys"]) != 1 {
		return fmt.Errorf("%w: foreign key enforcement is off after initialization", xerrors.ErrOpenFailed)
	}
	return nil
}

// --- introspection helpers ---

func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	row, err := s.GetOne(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// tableColumns returns column name -> declared type (upper-cased).
func (s *Store) tableColumns(ctx context.Context, table string) (map[string]string, error) {
	rows, err := s.GetAll(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	cols := make(map[string]string, len(rows))
	for _, r := range rows {
		cols[asString(r["name"])] = strings.ToUpper(asString(r["type"]))
	}
	return cols, nil
}

// --- SQL fragments for legacy value normalization ---

// isoDateTimeExpr rewrites a legacy date column (epoch millis, space
// separated datetime, or bare date) into an ISO datetime string.
func isoDateTimeExpr(col string) string {
	return fmt.Sprintf(`CASE
		WHEN %[1]s IS NULL OR %[1]s = '' THEN strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', 'now')
		WHEN typeof(%[1]s) IN ('integer', 'real') THEN strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', %[1]s / 1000.0, 'unixepoch')
		ELSE substr(replace(CAST(%[1]s AS TEXT), ' ', 'T'), 1, 19)
	END`, col)
}

// isoDateExpr rewrites a legacy date column into a bare ISO calendar date.
func isoDateExpr(col string) string {
	return fmt.Sprintf(`CASE
		WHEN %[1]s IS NULL OR %[1]s = '' THEN NULL
		WHEN typeof(%[1]s) IN ('integer', 'real') THEN strftime('%%Y-%%m-%%d', %[1]s / 1000.0, 'unixepoch')
		ELSE substr(CAST(%[1]s AS TEXT), 1, 10)
	END`, col)
}

// centsExpr converts a legacy floating-point money column to integer
// cents, clamping negatives to zero.
func centsExpr(col string) string {
	return fmt.Sprintf("MAX(0, CAST(ROUND(COALESCE(%s, 0) * 100) AS INTEGER))", col)
}

// --- v2: float money -> integer cents, dates -> ISO strings ---

// migrateV2 rewrites clients, payments and logs from the legacy
// floating-point shape (create new, copy with cast, drop old, rename).
// Referential integrity is switched off for the rewrite and must be
// verified back on afterwards; losing it is fatal.
func (s *Store) migrateV2(ctx context.Context) error {
	clientCols, err := s.tableColumns(ctx, "clients")
	if err != nil {
		return err
	}
	paymentCols, err := s.tableColumns(ctx, "payments")
	if err != nil {
		return err
	}
	_, legacyClients := clientCols["value"]
	_, legacyPayments := paymentCols["amount"]

	if !legacyClients && !legacyPayments {
		// fresh database already carries the cents shape
		return s.RunTransactionTimeout(ctx, 0, func(tx *Tx) error {
			return tx.Exec(ctx, "PRAGMA user_version = 2")
		})
	}

	if err := s.Exec(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return err
	}
	migrateErr := s.RunTransactionTimeout(ctx, 0, func(tx *Tx) error {
		if legacyClients {
			if err := tx.Exec(ctx, `CREATE TABLE clients_v2 (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				phone TEXT,
				reference TEXT,
				value_cents INTEGER NOT NULL DEFAULT 0,
				paid_cents INTEGER NOT NULL DEFAULT 0,
				next_charge TEXT,
				created_at TEXT NOT NULL
			)`); err != nil {
				return err
			}
			nextCharge := "NULL"
			if _, ok := clientCols["next_charge"]; ok {
				nextCharge = isoDateExpr("next_charge")
			}
			if err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO clients_v2
				(id, name, phone, reference, value_cents, paid_cents, next_charge, created_at)
				SELECT id, name, phone, reference, %s, %s, %s, %s FROM clients`,
				centsExpr("value"), centsExpr("paid"), nextCharge, isoDateTimeExpr("created_at"))); err != nil {
				return err
			}
			if err := tx.Exec(ctx, "DROP TABLE clients"); err != nil {
				return err
			}
			if err := tx.Exec(ctx, "ALTER TABLE clients_v2 RENAME TO clients"); err != nil {
				return err
			}
		}
		if legacyPayments {
			if err := tx.Exec(ctx, `CREATE TABLE payments_v2 (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
				amount_cents INTEGER NOT NULL,
				created_at TEXT NOT NULL
			)`); err != nil {
				return err
			}
			if err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO payments_v2
				(id, client_id, amount_cents, created_at)
				SELECT id, client_id, %s, %s FROM payments`,
				centsExpr("amount"), isoDateTimeExpr("created_at"))); err != nil {
				return err
			}
			if err := tx.Exec(ctx, "DROP TABLE payments"); err != nil {
				return err
			}
			if err := tx.Exec(ctx, "ALTER TABLE payments_v2 RENAME TO payments"); err != nil {
				return err
			}
		}
		if legacyClients {
			if err := tx.Exec(ctx, `CREATE TABLE logs_v2 (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
				description TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`); err != nil {
				return err
			}
			if err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO logs_v2
				(id, client_id, description, created_at)
				SELECT id, client_id, COALESCE(description, ''), %s FROM logs`,
				isoDateTimeExpr("created_at"))); err != nil {
				return err
			}
			if err := tx.Exec(ctx, "DROP TABLE logs"); err != nil {
				return err
			}
			if err := tx.Exec(ctx, "ALTER TABLE logs_v2 RENAME TO logs"); err != nil {
				return err
			}
		}
		return tx.Exec(ctx, "PRAGMA user_version = 2")
	})

	if err := s.Exec(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return err
	}
	if fkErr := s.verifyForeignKeys(ctx); fkErr != nil {
		return fkErr
	}
	return migrateErr
}

// --- v3: route hierarchy, status, scheduling columns ---

func (s *Store) migrateV3(ctx context.Context) error {
	cols, err := s.tableColumns(ctx, "clients")
	if err != nil {
		return err
	}
	_, hasStreet := cols["street_id"]
	_, hasLegacyNextCharge := cols["next_charge"]

	err = s.RunTransactionTimeout(ctx, 0, func(tx *Tx) error {
		if !hasStreet {
			adds := []string{
				"ALTER TABLE clients ADD COLUMN street_id INTEGER REFERENCES ruas(id) ON DELETE SET NULL",
				"ALTER TABLE clients ADD COLUMN visit_order INTEGER NOT NULL DEFAULT 1",
				"ALTER TABLE clients ADD COLUMN priority INTEGER NOT NULL DEFAULT 0",
				"ALTER TABLE clients ADD COLUMN notes TEXT",
				"ALTER TABLE clients ADD COLUMN status TEXT NOT NULL DEFAULT 'pending'",
				"ALTER TABLE clients ADD COLUMN next_charge_date TEXT",
				"ALTER TABLE clients ADD COLUMN updated_at TEXT",
			}
			for _, stmt := range adds {
				if err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
		}
		if hasLegacyNextCharge {
			if err := tx.Exec(ctx, fmt.Sprintf(
				"UPDATE clients SET next_charge_date = %s WHERE next_charge IS NOT NULL AND next_charge != ''",
				isoDateExpr("next_charge"))); err != nil {
				return err
			}
		}
		if err := tx.Exec(ctx,
			"UPDATE clients SET status = CASE WHEN paid_cents >= value_cents THEN 'settled' ELSE 'pending' END"); err != nil {
			return err
		}
		if err := tx.Exec(ctx,
			"UPDATE clients SET updated_at = created_at WHERE updated_at IS NULL OR updated_at = ''"); err != nil {
			return err
		}

		if !hasLegacyNextCharge {
			return tx.Exec(ctx, "PRAGMA user_version = 3")
		}
		return nil
	})
	if err != nil || !hasLegacyNextCharge {
		return err
	}

	// the structural rewrite drops the clients table; referential
	// integrity must be off so dependents are not cascade-deleted
	if err := s.Exec(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return err
	}
	rebuildErr := s.RunTransactionTimeout(ctx, 0, func(tx *Tx) error {
		if err := s.rebuildClientsV3(ctx, tx); err != nil {
			return err
		}
		return tx.Exec(ctx, "PRAGMA user_version = 3")
	})
	if err := s.Exec(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return err
	}
	if fkErr := s.verifyForeignKeys(ctx); fkErr != nil {
		return fkErr
	}
	return rebuildErr
}

// rebuildClientsV3 drops the legacy columns and installs the check
// constraints. The rewrite is idempotent: a target table left over from a
// previous partial run is reused, not recreated.
func (s *Store) rebuildClientsV3(ctx context.Context, tx *Tx) error {
	row, err := tx.GetOne(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'clients_v3'")
	if err != nil {
		return err
	}
	if row == nil {
		if err := tx.Exec(ctx, `CREATE TABLE clients_v3 (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			phone TEXT,
			reference TEXT,
			value_cents INTEGER NOT NULL DEFAULT 0 CHECK (value_cents >= 0),
			paid_cents INTEGER NOT NULL DEFAULT 0 CHECK (paid_cents >= 0 AND paid_cents <= value_cents),
			street_id INTEGER REFERENCES ruas(id) ON DELETE SET NULL,
			visit_order INTEGER NOT NULL DEFAULT 1 CHECK (visit_order > 0),
			priority INTEGER NOT NULL DEFAULT 0 CHECK (priority IN (0, 1)),
			notes TEXT,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'settled')),
			next_charge_date TEXT CHECK (next_charge_date IS NULL OR next_charge_date GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]*'),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`); err != nil {
			return err
		}
	}
	if err := tx.Exec(ctx, `INSERT OR REPLACE INTO clients_v3
		(id, name, phone, reference, value_cents, paid_cents, street_id,
		 visit_order, priority, notes, status, next_charge_date, created_at, updated_at)
		SELECT id, name, phone, reference,
			MAX(0, value_cents),
			MIN(MAX(0, paid_cents), MAX(0, value_cents)),
			street_id,
			MAX(1, COALESCE(visit_order, 1)),
			CASE WHEN priority IN (0, 1) THEN priority ELSE 0 END,
			notes,
			CASE WHEN paid_cents >= value_cents THEN 'settled' ELSE 'pending' END,
			CASE WHEN paid_cents >= value_cents THEN NULL ELSE next_charge_date END,
			created_at,
			COALESCE(updated_at, created_at)
		FROM clients`); err != nil {
		return err
	}
	if err := tx.Exec(ctx, "DROP TABLE clients"); err != nil {
		return err
	}
	return tx.Exec(ctx, "ALTER TABLE clients_v3 RENAME TO clients")
}

// --- v4: last visit timestamp ---

func (s *Store) migrateV4(ctx context.Context) error {
	cols, err := s.tableColumns(ctx, "clients")
	if err != nil {
		return err
	}
	_, hasLastVisit := cols["last_visit_at"]
	return s.RunTransactionTimeout(ctx, 0, func(tx *Tx) error {
		if !hasLastVisit {
			if err := tx.Exec(ctx, "ALTER TABLE clients ADD COLUMN last_visit_at TEXT"); err != nil {
				return err
			}
		}
		return tx.Exec(ctx, "PRAGMA user_version = 4")
	})
}
