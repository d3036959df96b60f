// Package archive writes completed exchanges to SQLite. It is a best-effort
// transcript: the session store never reads it back, so a process restart
// starts with empty history.
package archive

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"AgentChat/internal/session"
)

// Archive appends session transcripts to a SQLite database.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the archive database and ensures the schema.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME,
		backend TEXT
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		timestamp DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	if _, err := db.Exec(createMessagesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	return &Archive{db: db, logger: logger}, nil
}

// RecordExchange upserts the session row and appends the messages of one
// completed exchange.
func (a *Archive) RecordExchange(sessionID string, startTime time.Time, backend string, msgs ...session.Message) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO sessions (id, start_time, backend) VALUES (?, ?, ?)",
		sessionID, startTime, backend,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, msg := range msgs {
		_, err = tx.Exec(
			"INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
			sessionID, msg.Role, msg.Content, msg.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	a.logger.Info("exchange archived", "session_id", sessionID, "message_count", len(msgs))
	return nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
