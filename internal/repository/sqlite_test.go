package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestSQLiteStoreSessionAndMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }

	session, err := store.CreateSession(ctx, "  Trip planning  ", strPtr("llama-3.1-8b-instant"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Title != "Trip planning" {
		t.Fatalf("expected trimmed title, got %q", session.Title)
	}
	if session.CreatedAt != "2025-03-04 05:06:07" {
		t.Fatalf("unexpected created_at: %s", session.CreatedAt)
	}

	if _, err := store.AppendMessage(ctx, session.ID, domain.RoleUser, "hello", strPtr("llama-3.1-8b-instant")); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if _, err := store.AppendMessage(ctx, session.ID, domain.RoleAssistant, "hi there", strPtr("llama-3.1-8b-instant")); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Title != "Trip planning" || got.ModelID != "llama-3.1-8b-instant" {
		t.Fatalf("unexpected session: %+v", got.Session)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != domain.RoleUser || got.Messages[0].Content != "hello" || got.Messages[0].Seq != 1 {
		t.Fatalf("unexpected first message: %+v", got.Messages[0])
	}
	if got.Messages[1].Role != domain.RoleAssistant || got.Messages[1].Seq != 2 {
		t.Fatalf("unexpected second message: %+v", got.Messages[1])
	}
}

func TestSQLiteStoreCreateSessionDefaultsModel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session, err := store.CreateSession(ctx, "No model", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.ModelID != models.DefaultModel {
		t.Fatalf("expected default model, got %q", session.ModelID)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ModelID != models.DefaultModel {
		t.Fatalf("expected default model on read, got %q", got.ModelID)
	}
}

func TestSQLiteStoreRejectsBlankTitle(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateSession(context.Background(), "   ", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSQLiteStoreSequenceNumbers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a, _ := store.CreateSession(ctx, "a", nil)
	b, _ := store.CreateSession(ctx, "b", nil)

	for i := 1; i <= 4; i++ {
		msg, err := store.AppendMessage(ctx, a.ID, domain.RoleUser, "x", nil)
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
		if msg.Seq != i {
			t.Fatalf("expected seq %d, got %d", i, msg.Seq)
		}
	}

	// Sequences are per session.
	msg, err := store.AppendMessage(ctx, b.ID, domain.RoleUser, "y", nil)
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if msg.Seq != 1 {
		t.Fatalf("expected seq 1 in second session, got %d", msg.Seq)
	}
}

func TestSQLiteStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session, err := store.CreateSession(ctx, "busy", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AppendMessage(ctx, session.ID, domain.RoleUser, "concurrent", nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	messages, err := store.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != n {
		t.Fatalf("expected %d messages, got %d", n, len(messages))
	}
	for i, msg := range messages {
		if msg.Seq != i+1 {
			t.Fatalf("expected contiguous seq %d, got %d", i+1, msg.Seq)
		}
	}
}

func TestSQLiteStoreAppendUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AppendMessage(context.Background(), 42, domain.RoleUser, "hello", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteStoreRejectsSystemRole(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	session, _ := store.CreateSession(ctx, "s", nil)

	_, err := store.AppendMessage(ctx, session.ID, domain.RoleSystem, "be nice", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	messages, _ := store.ListMessages(ctx, session.ID)
	if len(messages) != 0 {
		t.Fatalf("expected no stored messages, got %d", len(messages))
	}
}

func TestSQLiteStoreMessageModelProvenance(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	session, _ := store.CreateSession(ctx, "switch", strPtr("openai/gpt-oss-120b"))

	store.AppendMessage(ctx, session.ID, domain.RoleUser, "q1", strPtr("openai/gpt-oss-120b"))
	store.AppendMessage(ctx, session.ID, domain.RoleAssistant, "a1", strPtr("openai/gpt-oss-120b"))
	store.AppendMessage(ctx, session.ID, domain.RoleUser, "q2", strPtr("llama-3.3-70b-versatile"))
	store.AppendMessage(ctx, session.ID, domain.RoleAssistant, "a2", strPtr("llama-3.3-70b-versatile"))
	store.AppendMessage(ctx, session.ID, domain.RoleUser, "q3", nil)

	messages, err := store.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	want := []string{
		"openai/gpt-oss-120b",
		"openai/gpt-oss-120b",
		"llama-3.3-70b-versatile",
		"llama-3.3-70b-versatile",
		models.DefaultModel,
	}
	for i, msg := range messages {
		if msg.ModelID != want[i] {
			t.Fatalf("message %d: expected model %q, got %q", i, want[i], msg.ModelID)
		}
	}
}

func TestSQLiteStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	session, _ := store.CreateSession(ctx, "gone", nil)
	keep, _ := store.CreateSession(ctx, "kept", nil)
	store.AppendMessage(ctx, session.ID, domain.RoleUser, "hello", nil)
	store.AppendMessage(ctx, keep.ID, domain.RoleUser, "hello", nil)

	if err := store.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	if _, err := store.GetSession(ctx, session.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	var orphans int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, session.ID).Scan(&orphans); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected cascade delete, found %d messages", orphans)
	}

	remaining, _ := store.ListMessages(ctx, keep.ID)
	if len(remaining) != 1 {
		t.Fatalf("expected other session untouched, got %d messages", len(remaining))
	}

	// Deleting again is a no-op.
	if err := store.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("second DeleteSession failed: %v", err)
	}
}

func TestSQLiteStoreLoadAllSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	first, _ := store.CreateSession(ctx, "first", nil)
	second, _ := store.CreateSession(ctx, "second", nil)
	store.AppendMessage(ctx, first.ID, domain.RoleUser, "one", nil)
	store.AppendMessage(ctx, first.ID, domain.RoleAssistant, "two", nil)

	records, err := store.LoadAllSessions(ctx)
	if err != nil {
		t.Fatalf("LoadAllSessions failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(records))
	}
	if records[0].ID != second.ID || records[1].ID != first.ID {
		t.Fatalf("expected newest first, got %d then %d", records[0].ID, records[1].ID)
	}
	if len(records[0].Messages) != 0 {
		t.Fatalf("expected empty session, got %d messages", len(records[0].Messages))
	}
	if len(records[1].Messages) != 2 || records[1].Messages[1].Content != "two" {
		t.Fatalf("unexpected messages: %+v", records[1].Messages)
	}
}

func TestSQLiteStoreInitializeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	session, _ := store.CreateSession(ctx, "keep me", nil)

	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if _, err := store.GetSession(ctx, session.ID); err != nil {
		t.Fatalf("session lost after Initialize: %v", err)
	}
}

func TestSQLiteStoreMigratesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	stmts := []string{
		`CREATE TABLE sessions (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, created_at TEXT NOT NULL)`,
		`CREATE TABLE messages (id INTEGER PRIMARY KEY AUTOINCREMENT, session_id INTEGER NOT NULL, role TEXT NOT NULL, content TEXT NOT NULL, created_at TEXT NOT NULL, seq INTEGER NOT NULL, FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE)`,
		`INSERT INTO sessions (title, created_at) VALUES ('old chat', '2024-01-01 10:00:00')`,
		`INSERT INTO messages (session_id, role, content, created_at, seq) VALUES (1, 'user', 'hi', '2024-01-01 10:00:01', 1)`,
	}
	for _, stmt := range stmts {
		if _, err := legacy.Exec(stmt); err != nil {
			t.Fatalf("seed legacy db: %v", err)
		}
	}
	legacy.Close()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open migrated store: %v", err)
	}
	defer store.Close()

	record, err := store.GetSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if record.ModelID != models.DefaultModel {
		t.Fatalf("expected default model on legacy session, got %q", record.ModelID)
	}
	if len(record.Messages) != 1 || record.Messages[0].ModelID != models.DefaultModel {
		t.Fatalf("unexpected legacy messages: %+v", record.Messages)
	}

	msg, err := store.AppendMessage(context.Background(), 1, domain.RoleAssistant, "hello again", nil)
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if msg.Seq != 2 {
		t.Fatalf("expected seq 2, got %d", msg.Seq)
	}
}

func TestSQLiteStoreRenumbersLegacyDuplicateSeqs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy-dupes.db")

	legacy, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	stmts := []string{
		`CREATE TABLE sessions (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, created_at TEXT NOT NULL)`,
		`CREATE TABLE messages (id INTEGER PRIMARY KEY AUTOINCREMENT, session_id INTEGER NOT NULL, role TEXT NOT NULL, content TEXT NOT NULL, created_at TEXT NOT NULL, seq INTEGER NOT NULL, FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE)`,
		`INSERT INTO sessions (title, created_at) VALUES ('racy chat', '2024-01-01 10:00:00')`,
		`INSERT INTO sessions (title, created_at) VALUES ('clean chat', '2024-01-01 11:00:00')`,
		`INSERT INTO messages (session_id, role, content, created_at, seq) VALUES (1, 'user', 'first', '2024-01-01 10:00:01', 1)`,
		`INSERT INTO messages (session_id, role, content, created_at, seq) VALUES (1, 'user', 'second', '2024-01-01 10:00:02', 1)`,
		`INSERT INTO messages (session_id, role, content, created_at, seq) VALUES (1, 'assistant', 'third', '2024-01-01 10:00:03', 2)`,
		`INSERT INTO messages (session_id, role, content, created_at, seq) VALUES (2, 'user', 'untouched', '2024-01-01 11:00:01', 1)`,
	}
	for _, stmt := range stmts {
		if _, err := legacy.Exec(stmt); err != nil {
			t.Fatalf("seed legacy db: %v", err)
		}
	}
	legacy.Close()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store over duplicate seqs: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	messages, err := store.ListMessages(ctx, 1)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(messages))
	}
	for i, msg := range messages {
		if msg.Seq != i+1 || msg.Content != want[i] {
			t.Fatalf("message %d: got seq %d %q", i, msg.Seq, msg.Content)
		}
	}

	other, _ := store.ListMessages(ctx, 2)
	if len(other) != 1 || other[0].Seq != 1 {
		t.Fatalf("unexpected messages in clean session: %+v", other)
	}

	msg, err := store.AppendMessage(ctx, 1, domain.RoleAssistant, "fourth", nil)
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if msg.Seq != 4 {
		t.Fatalf("expected seq 4, got %d", msg.Seq)
	}

	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("Initialize after renumbering failed: %v", err)
	}
}

func TestSQLiteStoreImportSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record, err := store.ImportSession(ctx, "  imported  ", strPtr("llama-3.1-8b-instant"), []domain.Message{
		{Role: domain.RoleUser, Content: "hi", ModelID: "llama-3.1-8b-instant"},
		{Role: domain.RoleAssistant, Content: "hello", ModelID: "acme/retired"},
	})
	if err != nil {
		t.Fatalf("ImportSession failed: %v", err)
	}
	if record.Title != "imported" || record.ModelID != "llama-3.1-8b-instant" {
		t.Fatalf("unexpected session: %+v", record.Session)
	}

	stored, err := store.GetSession(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(stored.Messages))
	}
	for i, msg := range stored.Messages {
		if msg.Seq != i+1 || msg.ID != record.Messages[i].ID {
			t.Fatalf("message %d mismatch: stored %+v, returned %+v", i, msg, record.Messages[i])
		}
	}
	if stored.Messages[1].ModelID != "acme/retired" {
		t.Fatalf("expected recorded model to be kept, got %q", stored.Messages[1].ModelID)
	}
}

func TestSQLiteStoreImportSessionIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.ImportSession(ctx, "half", nil, []domain.Message{
		{Role: domain.RoleUser, Content: "stored first"},
		{Role: domain.RoleSystem, Content: "rejected"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	records, err := store.LoadAllSessions(ctx)
	if err != nil {
		t.Fatalf("LoadAllSessions failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no sessions after failed import, got %+v", records)
	}

	var count int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no messages after failed import, got %d", count)
	}
}
