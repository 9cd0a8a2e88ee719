// Package sqlite persists sessions and upload records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/session"
	"github.com/wa-rotator/backend/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS whatsapp_sessions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL UNIQUE,
	phone_number    TEXT NOT NULL DEFAULT '',
	connection_type TEXT NOT NULL DEFAULT 'creds',
	phone_id        TEXT,
	targets         TEXT NOT NULL DEFAULT '',
	message_path    TEXT NOT NULL DEFAULT '',
	message_text    TEXT NOT NULL DEFAULT '',
	delay           INTEGER NOT NULL DEFAULT 10,
	message_count   INTEGER NOT NULL DEFAULT 0,
	is_active       INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS file_uploads (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	original_name TEXT NOT NULL,
	storage_path  TEXT NOT NULL,
	file_type     TEXT NOT NULL,
	file_size     INTEGER NOT NULL,
	created_at    DATETIME NOT NULL
);
`

const sessionColumns = `session_id, phone_number, connection_type, phone_id, targets,
	message_path, message_text, delay, message_count, is_active, created_at, updated_at`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}
	// A single connection serialises writers; sqlite rejects concurrent ones.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	if sess.SessionID == "" {
		return errors.New("session id is required")
	}
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whatsapp_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			phone_number = excluded.phone_number,
			connection_type = excluded.connection_type,
			phone_id = excluded.phone_id,
			targets = excluded.targets,
			message_path = excluded.message_path,
			message_text = excluded.message_text,
			delay = excluded.delay,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		sess.SessionID, sess.PhoneNumber, sess.ConnectionType.String(), nullString(sess.PhoneID),
		sess.Targets, sess.MessagePath, sess.MessageText, sess.Delay, sess.IsActive, now, now,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save session %s", sess.SessionID)
	}

	stored, err := s.GetSession(ctx, sess.SessionID)
	if err != nil {
		return err
	}
	sess.MessageCount = stored.MessageCount
	sess.CreatedAt = stored.CreatedAt
	sess.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM whatsapp_sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load session %s", id)
	}
	return sess, nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE whatsapp_sessions SET is_active = ?, updated_at = ? WHERE session_id = ?`,
		active, s.now().UTC(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to update session %s", id)
	}
	return expectOneRow(res)
}

func (s *Store) ListSessions(ctx context.Context, activeOnly bool) ([]*session.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM whatsapp_sessions`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY session_id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	var result []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		result = append(result, sess)
	}
	return result, errors.Wrap(rows.Err(), "failed to list sessions")
}

func (s *Store) IncrementMessageCount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE whatsapp_sessions SET message_count = message_count + 1, updated_at = ? WHERE session_id = ?`,
		s.now().UTC(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to increment message count for %s", id)
	}
	return expectOneRow(res)
}

func (s *Store) MessageCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT message_count FROM whatsapp_sessions WHERE session_id = ?`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read message count for %s", id)
	}
	return n, nil
}

func (s *Store) SaveUpload(ctx context.Context, u *session.Upload) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO file_uploads (original_name, storage_path, file_type, file_size, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.OriginalName, u.StoragePath, u.FileType, u.FileSize, u.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to record upload")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read upload id")
	}
	u.ID = id
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*session.Session, error) {
	var (
		sess     session.Session
		connType string
		phoneID  sql.NullString
	)
	err := row.Scan(&sess.SessionID, &sess.PhoneNumber, &connType, &phoneID, &sess.Targets,
		&sess.MessagePath, &sess.MessageText, &sess.Delay, &sess.MessageCount, &sess.IsActive,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ct, err := session.ParseConnectionType(connType)
	if err != nil {
		return nil, err
	}
	sess.ConnectionType = ct
	sess.PhoneID = phoneID.String
	return &sess, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
