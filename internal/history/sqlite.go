package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"chatcrew/internal/logger"
)

// SQLiteSink persists sessions to a local SQLite database. Timestamps are
// stored as UnixNano integers so a persist/load round trip keeps the exact
// identity the merge deduplication relies on. Next to the database it
// maintains a plain-text transcript per session for operator inspection;
// the transcript is never read back.
type SQLiteSink struct {
	db            *sql.DB
	transcriptDir string
}

// NewSQLiteSink opens (and if needed creates) the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			speaker    TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}
	return &SQLiteSink{db: db, transcriptDir: filepath.Dir(path)}, nil
}

// Persist replaces the stored copy of the session with s.
func (k *SQLiteSink) Persist(s Session) error {
	tx, err := k.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at;`,
		s.ID, s.StartedAt.UnixNano()); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?;`, s.ID); err != nil {
		return err
	}
	for _, m := range s.Messages {
		if _, err := tx.Exec(`INSERT INTO messages (session_id, speaker, content, created_at) VALUES (?, ?, ?, ?);`,
			s.ID, m.Speaker, m.Content, m.Timestamp.UnixNano()); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if err := k.writeTranscript(s); err != nil {
		logger.L.Warn("failed to write transcript", "session", s.ID, "error", err)
	}
	return nil
}

// Load returns the stored session, or ok=false when none exists under id.
func (k *SQLiteSink) Load(id string) (Session, bool, error) {
	var startedNano int64
	err := k.db.QueryRow(`SELECT started_at FROM sessions WHERE id = ?;`, id).Scan(&startedNano)
	if err == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}

	rows, err := k.db.Query(`SELECT speaker, content, created_at FROM messages
		WHERE session_id = ? ORDER BY created_at ASC, id ASC;`, id)
	if err != nil {
		return Session{}, false, err
	}
	defer rows.Close()

	s := Session{ID: id, StartedAt: time.Unix(0, startedNano)}
	for rows.Next() {
		var m Message
		var createdNano int64
		if err := rows.Scan(&m.Speaker, &m.Content, &createdNano); err != nil {
			return Session{}, false, err
		}
		m.Timestamp = time.Unix(0, createdNano)
		s.Messages = append(s.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

// Close releases the database handle.
func (k *SQLiteSink) Close() error {
	return k.db.Close()
}

func (k *SQLiteSink) writeTranscript(s Session) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# session %s, started %s\n", s.ID, s.StartedAt.Format(time.RFC3339))
	for _, m := range s.Messages {
		b.WriteString(m.Render())
		b.WriteByte('\n')
	}
	path := filepath.Join(k.transcriptDir, s.ID+".log")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
