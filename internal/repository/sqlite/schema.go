// internal/repository/sqlite/schema.go
package sqlite

// schemaVersionCurrent is the user_version a fully migrated database
// carries. Versions move strictly forward: 0 -> 2 -> 3 -> 4.
const schemaVersionCurrent = 4

// baseSchema is the current table shape. It only ever runs with
// IF NOT EXISTS; legacy databases keep their old shape until the
// migration engine rewrites them.
const baseSchema = `
CREATE TABLE IF NOT EXISTS bairros (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	nome TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ruas (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	bairro_id INTEGER NOT NULL REFERENCES bairros(id) ON DELETE CASCADE,
	nome TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS clients (
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
	last_visit_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	amount_cents INTEGER NOT NULL CHECK (amount_cents > 0),
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	description TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
`

// indexSchema is batch-created in one pass after migrations so index
// builds never interleave with table rewrites.
const indexSchema = `
CREATE INDEX IF NOT EXISTS idx_ruas_bairro ON ruas(bairro_id);
CREATE INDEX IF NOT EXISTS idx_clients_street ON clients(street_id);
CREATE INDEX IF NOT EXISTS idx_clients_status ON clients(status);
CREATE INDEX IF NOT EXISTS idx_clients_next_charge ON clients(next_charge_date);
CREATE INDEX IF NOT EXISTS idx_clients_updated ON clients(updated_at);
CREATE INDEX IF NOT EXISTS idx_payments_client ON payments(client_id);
CREATE INDEX IF NOT EXISTS idx_payments_created ON payments(created_at);
CREATE INDEX IF NOT EXISTS idx_logs_client ON logs(client_id);
`
