package database

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var DB *sql.DB

// Initialize sets up the database connection and creates tables
func Initialize(path string) error {
	var err error
	DB, err = sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_loc=UTC")
	if err != nil {
		return err
	}

	// Test connection
	if err := DB.Ping(); err != nil {
		return err
	}

	// Set connection pool settings
	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(5)
	DB.SetConnMaxLifetime(5 * time.Minute)

	return createTables()
}

func createTables() error {
	// The unordered participant pair is stored normalized (lo < hi). The
	// UNIQUE constraint is what guarantees at most one thread per pair under
	// concurrent first contact; FindOrCreateThread retries the lookup when
	// an insert loses that race.
	tables := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		participant_lo TEXT NOT NULL,
		participant_hi TEXT NOT NULL,
		hidden_lo INTEGER NOT NULL DEFAULT 0,
		hidden_hi INTEGER NOT NULL DEFAULT 0,
		last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(participant_lo, participant_hi),
		CHECK(participant_lo < participant_hi)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		body TEXT NOT NULL,
		media_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		contact TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(owner, contact)
	);

	CREATE INDEX IF NOT EXISTS idx_threads_lo ON threads(participant_lo);
	CREATE INDEX IF NOT EXISTS idx_threads_hi ON threads(participant_hi);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
	CREATE INDEX IF NOT EXISTS idx_contacts_owner ON contacts(owner);
	`

	_, err := DB.Exec(tables)
	return err
}

// Close releases the database handle.
func Close() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}

// NormalizePair orders an unordered participant pair for storage.
func NormalizePair(a, b string) (lo, hi string) {
	if a < b {
		return a, b
	}
	return b, a
}
