// internal/repository/sqlite/db.go
package sqlite

import (
	"context"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"crediario-service/internal/config"
	xerrors "crediario-service/internal/pkg/errors"
	"crediario-service/internal/pkg/textnorm"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
)

var registerFoldOnce sync.Once

// registerFold exposes accent/case folding to SQL as fold(x), used by the
// LIKE search fallback. Registration is driver-global and happens once.
func registerFold() {
	registerFoldOnce.Do(func() {
		_ = msqlite.RegisterDeterministicScalarFunction("fold", 1,
			func(ctx *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case string:
					return textnorm.Fold(v), nil
				case []byte:
					return textnorm.Fold(string(v)), nil
				case nil:
					return nil, nil
				default:
					return fmt.Sprintf("%v", v), nil
				}
			})
	})
}

// openAttempt is one in-flight open shared by every concurrent caller.
// db and err are written before done is closed.
type openAttempt struct {
	done chan struct{}
	db   *sqlx.DB
	err  error
}

// Manager owns the single database handle. All other components borrow it
// through the query layer and the transaction executor.
type Manager struct {
	cfg config.AppConfig
	log *zap.Logger

	mu       sync.Mutex
	db       *sqlx.DB
	pending  *openAttempt
	failures int

	// engine schema_version counter recorded after a successful open
	engineSchemaVersion int64
}

func NewManager(cfg config.AppConfig, log *zap.Logger) *Manager {
	registerFold()
	return &Manager{cfg: cfg, log: log}
}

// Open returns the live handle, creating it on first call. Concurrent
// callers during an in-flight open share the same attempt.
func (m *Manager) Open(ctx context.Context) (*sqlx.DB, error) {
	m.mu.Lock()
	if m.db != nil {
		db := m.db
		m.mu.Unlock()
		return db, nil
	}
	if m.pending == nil {
		attempt := &openAttempt{done: make(chan struct{})}
		m.pending = attempt
		go m.runOpen(attempt)
	}
	attempt := m.pending
	m.mu.Unlock()

	select {
	case <-attempt.done:
		if attempt.err != nil {
			return nil, attempt.err
		}
		return attempt.db, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runOpen races the real open against the configured timeout. A slow open
// that succeeds after the timeout fired is closed, never adopted.
func (m *Manager) runOpen(attempt *openAttempt) {
	type result struct {
		db  *sqlx.DB
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		db, err := m.openAndConfigure()
		resCh <- result{db: db, err: err}
	}()

	var db *sqlx.DB
	var err error
	select {
	case r := <-resCh:
		db, err = r.db, r.err
	case <-time.After(m.cfg.OpenTimeout):
		err = xerrors.ErrConnTimeout
		go func() {
			if r := <-resCh; r.db != nil {
				m.log.Warn("database opened after timeout, closing stray handle",
					zap.Duration("timeout", m.cfg.OpenTimeout))
				_ = r.db.Close()
			}
		}()
	}

	m.mu.Lock()
	if err != nil {
		m.failures++
		m.log.Error("database open failed",
			zap.Error(err), zap.Int("consecutive_failures", m.failures))
		if m.failures >= m.cfg.MaxOpenRetry {
			// wipe all state so the next caller retries completely fresh
			m.failures = 0
		}
	} else {
		m.db = db
		m.failures = 0
	}
	m.pending = nil
	attempt.db = db
	attempt.err = err
	m.mu.Unlock()
	close(attempt.done)
}

func (m *Manager) openAndConfigure() (*sqlx.DB, error) {
	path := m.cfg.DBPath
	if dir := filepath.Dir(strings.TrimPrefix(path, "file:")); dir != "." && dir != "" && !strings.Contains(path, "mode=memory") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.Wrap(err, "create database directory")
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrOpenFailed, err)
	}
	// single shared handle: the engine's own locking serializes writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", xerrors.ErrOpenFailed, err)
	}
	if err := m.configure(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// configure runs the one-time connection setup: durability pragmas with
// read-back verification, busy timeout, integrity check with optional
// checkpoint-based recovery, and the engine schema_version record.
func (m *Manager) configure(db *sqlx.DB) error {
	journal := "WAL"
	syncMode := "NORMAL"
	if m.cfg.LowDurability {
		// conservative mode for old or low-end devices
		journal = "DELETE"
		syncMode = "FULL"
	}
	if _, err := db.Exec("PRAGMA journal_mode=" + journal); err != nil {
		return xerrors.Wrap(err, "set journal mode")
	}
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return xerrors.Wrap(err, "verify journal mode")
	}
	// in-memory databases report "memory"; that is fine
	if !strings.EqualFold(mode, journal) && !strings.EqualFold(mode, "memory") {
		m.log.Warn("journal mode not applied", zap.String("want", journal), zap.String("got", mode))
	}
	if _, err := db.Exec("PRAGMA synchronous=" + syncMode); err != nil {
		return xerrors.Wrap(err, "set synchronous")
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", m.cfg.BusyTimeoutMs)); err != nil {
		return xerrors.Wrap(err, "set busy timeout")
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return xerrors.Wrap(err, "enable foreign keys")
	}
	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		return xerrors.Wrap(err, "verify foreign keys")
	}
	if fk != 1 {
		return fmt.Errorf("%w: foreign key enforcement did not take effect", xerrors.ErrOpenFailed)
	}

	if err := m.integrityCheck(db); err != nil {
		return err
	}

	var sv int64
	if err := db.QueryRow("PRAGMA schema_version").Scan(&sv); err != nil {
		// read-only diagnostic, never blocks startup
		m.log.Warn("could not read engine schema_version", zap.Error(err))
	} else {
		m.mu.Lock()
		m.engineSchemaVersion = sv
		m.mu.Unlock()
	}
	return nil
}

// integrityCheck probes the file with quick_check and, when corruption is
// reported, tries a WAL checkpoint before rechecking. An unrecoverable
// result is fatal; a failing probe itself only logs and continues.
func (m *Manager) integrityCheck(db *sqlx.DB) error {
	var verdict string
	if err := db.QueryRow("PRAGMA quick_check(1)").Scan(&verdict); err != nil {
		m.log.Warn("integrity probe failed, continuing startup", zap.Error(err))
		return nil
	}
	if strings.EqualFold(verdict, "ok") {
		return nil
	}
	m.log.Error("integrity check reported corruption, attempting checkpoint recovery",
		zap.String("verdict", verdict))
	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		m.log.Warn("checkpoint recovery attempt failed", zap.Error(err))
	}
	if err := db.QueryRow("PRAGMA quick_check(1)").Scan(&verdict); err == nil && strings.EqualFold(verdict, "ok") {
		m.log.Info("checkpoint recovery succeeded")
		return nil
	}
	return fmt.Errorf("%w: quick_check says %q", xerrors.ErrCorruption, verdict)
}

// Healthy issues a trivial probe. On failure the stale handle is discarded
// and one transparent reopen is attempted before reporting the error.
func (m *Manager) Healthy(ctx context.Context) error {
	db, err := m.Open(ctx)
	if err != nil {
		return err
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err == nil && one == 1 {
		return nil
	}
	m.log.Warn("health probe failed, discarding handle and reopening")
	m.discard(db)
	db, err = m.Open(ctx)
	if err != nil {
		return err
	}
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return xerrors.Wrap(err, "health probe after reopen")
	}
	return nil
}

// discard drops the given handle if it is still the current one.
func (m *Manager) discard(db *sqlx.DB) {
	m.mu.Lock()
	if m.db == db {
		m.db = nil
	}
	m.mu.Unlock()
	_ = db.Close()
}

// EngineSchemaVersion is the engine's internal schema counter recorded at
// the last successful open. Zero until a handle has been configured.
func (m *Manager) EngineSchemaVersion() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engineSchemaVersion
}

// Close releases the handle. The next Open starts from scratch.
func (m *Manager) Close() error {
	m.mu.Lock()
	db := m.db
	m.db = nil
	m.pending = nil
	m.failures = 0
	m.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}
