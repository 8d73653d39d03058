package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/logger"
	"github.com/xiaot623/gogo/chatbot/internal/models"
)

// maxAppendAttempts bounds retries after a (session_id, seq) collision.
const maxAppendAttempts = 3

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	// appendMu serializes the read-max-then-insert step of AppendMessage.
	appendMu sync.Mutex
	now      func() time.Time
}

// NewSQLiteStore opens the database and initializes the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageErr("open database", err)
	}
	// SQLite has a single writer, and every connection to ":memory:" gets its
	// own database. Keep exactly one connection open for the process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, storageErr("enable foreign keys", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Initialize runs database migrations. Tables are created when missing and
// older schemas without model_id columns are upgraded in place; existing rows
// get the default model.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			model_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			seq INTEGER NOT NULL,
			model_id TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return storageErr("migration failed", fmt.Errorf("%w\n%s", err, m))
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	defaultModel := strings.ReplaceAll(models.Default(), "'", "''")
	if err := s.ensureColumn(ctx, "sessions", "model_id",
		fmt.Sprintf("ALTER TABLE sessions ADD COLUMN model_id TEXT DEFAULT '%s'", defaultModel)); err != nil {
		return storageErr("add sessions.model_id", err)
	}
	if err := s.ensureColumn(ctx, "messages", "model_id",
		fmt.Sprintf("ALTER TABLE messages ADD COLUMN model_id TEXT DEFAULT '%s'", defaultModel)); err != nil {
		return storageErr("add messages.model_id", err)
	}

	if err := s.renumberDuplicateSeqs(ctx); err != nil {
		return storageErr("renumber messages", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq)`); err != nil {
		return storageErr("create sequence index", err)
	}
	return nil
}

// renumberDuplicateSeqs rewrites seq as 1..n in (seq, id) order for every
// session holding duplicate sequence numbers, which databases written before
// the unique index may contain. It does nothing once the index exists.
func (s *SQLiteStore) renumberDuplicateSeqs(ctx context.Context) error {
	var indexed int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_messages_session_seq'`).Scan(&indexed)
	if err != nil || indexed > 0 {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sessionIDs, err := queryIDs(ctx, tx,
		`SELECT DISTINCT session_id FROM (
			SELECT session_id FROM messages GROUP BY session_id, seq HAVING COUNT(*) > 1
		) ORDER BY session_id`)
	if err != nil {
		return err
	}
	for _, sessionID := range sessionIDs {
		messageIDs, err := queryIDs(ctx, tx,
			`SELECT id FROM messages WHERE session_id = ? ORDER BY seq ASC, id ASC`, sessionID)
		if err != nil {
			return err
		}
		for i, id := range messageIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE messages SET seq = ? WHERE id = ?`, i+1, id); err != nil {
				return err
			}
		}
		logger.WarnWithFields("renumbered duplicate message sequence", logger.Fields{
			"session_id": sessionID,
			"messages":   len(messageIDs),
		})
	}
	return tx.Commit()
}

// queryIDs reads a single integer column and closes its rows before
// returning.
func queryIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ensureColumn(ctx context.Context, tableName, columnName, ddl string) error {
	found, err := s.hasColumn(ctx, tableName, columnName)
	if err != nil || found {
		return err
	}
	_, err = s.db.ExecContext(ctx, ddl)
	return err
}

// hasColumn closes its rows before returning; the store holds a single
// connection, so the following ALTER would otherwise block.
func (s *SQLiteStore) hasColumn(ctx context.Context, tableName, columnName string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session. The title is trimmed and must not be
// empty.
func (s *SQLiteStore) CreateSession(ctx context.Context, title string, modelID *string) (*domain.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: session title must not be empty", domain.ErrValidation)
	}

	createdAt := domain.FormatTimestamp(s.now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (title, created_at, model_id) VALUES (?, ?, ?)`,
		title, createdAt, nullString(modelID))
	if err != nil {
		return nil, storageErr("create session", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("create session", err)
	}

	return &domain.Session{
		ID:        id,
		Title:     title,
		CreatedAt: createdAt,
		ModelID:   models.ResolvePtr(modelID),
	}, nil
}

// ImportSession creates a session and stores messages under it with
// sequence numbers 1..n, all in one transaction. Nothing is stored when any
// message is rejected.
func (s *SQLiteStore) ImportSession(ctx context.Context, title string, modelID *string, messages []domain.Message) (*domain.SessionRecord, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: session title must not be empty", domain.ErrValidation)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin import", err)
	}
	defer tx.Rollback()

	createdAt := domain.FormatTimestamp(s.now())
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (title, created_at, model_id) VALUES (?, ?, ?)`,
		title, createdAt, nullString(modelID))
	if err != nil {
		return nil, storageErr("import session", err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("import session", err)
	}

	record := domain.SessionRecord{
		Session: domain.Session{
			ID:        sessionID,
			Title:     title,
			CreatedAt: createdAt,
			ModelID:   models.ResolvePtr(modelID),
		},
		Messages: make([]domain.Message, 0, len(messages)),
	}
	for i, m := range messages {
		if !m.Role.Persistable() {
			return nil, fmt.Errorf("%w: message %d has role %q", domain.ErrValidation, i, m.Role)
		}
		msgModel := m.ModelID
		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, created_at, seq, model_id) VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, string(m.Role), m.Content, createdAt, i+1, nullString(&msgModel))
		if err != nil {
			return nil, storageErr("import message", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, storageErr("import message", err)
		}
		record.Messages = append(record.Messages, domain.Message{
			ID:        id,
			SessionID: sessionID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: createdAt,
			Seq:       i + 1,
			ModelID:   models.Resolve(msgModel),
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit import", err)
	}
	return &record, nil
}

// GetSession retrieves a session by ID together with its messages.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID int64) (*domain.SessionRecord, error) {
	var record domain.SessionRecord
	var modelID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, model_id FROM sessions WHERE id = ?`,
		sessionID).Scan(&record.ID, &record.Title, &record.CreatedAt, &modelID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: session %d", domain.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, storageErr("get session", err)
	}
	record.ModelID = models.Resolve(modelID.String)

	messages, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	record.Messages = messages
	return &record, nil
}

// DeleteSession removes a session and, through the foreign key cascade, all
// of its messages. Deleting an unknown id is a no-op.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return storageErr("delete session", err)
	}
	return nil
}

// AppendMessage stores a message with the next sequence number of its
// session. The sequence is computed and inserted in one statement inside a
// transaction; the unique (session_id, seq) index rejects any collision that
// slips past the store mutex, and the insert is retried.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID int64, role domain.Role, content string, modelID *string) (*domain.Message, error) {
	if !role.Persistable() {
		return nil, fmt.Errorf("%w: role %q cannot be stored", domain.ErrValidation, role)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		msg, err := s.appendOnce(ctx, sessionID, role, content, modelID)
		if err == nil {
			return msg, nil
		}
		if !isConstraint(err, sqlite3.ErrConstraintUnique) {
			return nil, err
		}
		lastErr = err
	}
	return nil, storageErr("append message", lastErr)
}

func (s *SQLiteStore) appendOnce(ctx context.Context, sessionID int64, role domain.Role, content string, modelID *string) (*domain.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin append", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: session %d", domain.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, storageErr("append message", err)
	}

	createdAt := domain.FormatTimestamp(s.now())
	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at, seq, model_id)
		 SELECT ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1, ? FROM messages WHERE session_id = ?`,
		sessionID, string(role), content, createdAt, nullString(modelID), sessionID)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return nil, err
		}
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return nil, fmt.Errorf("%w: session %d", domain.ErrNotFound, sessionID)
		}
		return nil, storageErr("append message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("append message", err)
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT seq FROM messages WHERE id = ?`, id).Scan(&seq); err != nil {
		return nil, storageErr("append message", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit append", err)
	}

	return &domain.Message{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
		Seq:       seq,
		ModelID:   models.ResolvePtr(modelID),
	}, nil
}

// ListMessages retrieves the messages of a session in sequence order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID int64) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at, seq, model_id FROM messages WHERE session_id = ? ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, storageErr("list messages", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list messages", err)
	}
	return messages, nil
}

// LoadAllSessions returns every session, newest id first, each with its
// messages in sequence order.
func (s *SQLiteStore) LoadAllSessions(ctx context.Context) ([]domain.SessionRecord, error) {
	sessions, err := s.listSessions(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at, seq, model_id FROM messages ORDER BY session_id, seq ASC`)
	if err != nil {
		return nil, storageErr("load messages", err)
	}
	defer rows.Close()

	bySession := make(map[int64][]domain.Message, len(sessions))
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, storageErr("load messages", err)
		}
		bySession[msg.SessionID] = append(bySession[msg.SessionID], msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load messages", err)
	}

	records := make([]domain.SessionRecord, 0, len(sessions))
	for _, session := range sessions {
		messages := bySession[session.ID]
		if messages == nil {
			messages = []domain.Message{}
		}
		records = append(records, domain.SessionRecord{Session: session, Messages: messages})
	}
	return records, nil
}

func (s *SQLiteStore) listSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, created_at, model_id FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, storageErr("load sessions", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		var modelID sql.NullString
		if err := rows.Scan(&session.ID, &session.Title, &session.CreatedAt, &modelID); err != nil {
			return nil, storageErr("load sessions", err)
		}
		session.ModelID = models.Resolve(modelID.String)
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load sessions", err)
	}
	return sessions, nil
}

func scanMessage(rows *sql.Rows) (domain.Message, error) {
	var msg domain.Message
	var role string
	var modelID sql.NullString
	if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt, &msg.Seq, &modelID); err != nil {
		return msg, err
	}
	msg.Role = domain.Role(role)
	msg.ModelID = models.Resolve(modelID.String)
	return msg, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == code
}

func nullString(s *string) sql.NullString {
	if s == nil || strings.TrimSpace(*s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
