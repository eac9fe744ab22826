package fulltext

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

// trigramMinRunes is the shortest term the trigram tokenizer can match.
const trigramMinRunes = 3

// SQLite is a Backend over an FTS5 table with the trigram tokenizer,
// which gives case-insensitive substring matching on every column.
type SQLite struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	window int
	closed bool
}

func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLite opens or creates the database at path. Empty path is in-memory.
func NewSQLite(path string, opts Options) (*SQLite, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("fulltext_index_unreadable",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("index at %s unreadable and cannot be removed: %w", path, err)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLite{db: db, path: path, window: opts.window()}
	if err := s.EnsureIndex(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Name implements Backend.
func (s *SQLite) Name() string {
	return "sqlite"
}

// Ping implements Backend.
func (s *SQLite) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return doerrors.BackendUnavailable(s.Name(), errIndexClosed)
	}
	return s.db.PingContext(ctx)
}

// EnsureIndex implements Backend.
func (s *SQLite) EnsureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return doerrors.BackendUnavailable(s.Name(), errIndexClosed)
	}

	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(
		filename,
		title,
		description,
		content,
		is_public UNINDEXED,
		tokenize='trigram'
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Index implements Backend.
func (s *SQLite) Index(ctx context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return doerrors.BackendUnavailable(s.Name(), errIndexClosed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE filename = ?`, doc.Filename); err != nil {
		return fmt.Errorf("failed to replace document %s: %w", doc.Filename, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (filename, title, description, content, is_public) VALUES (?, ?, ?, ?, ?)`,
		doc.Filename, doc.Title, doc.Description, doc.Content, doc.IsPublic); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.Filename, err)
	}
	return tx.Commit()
}

// Remove implements Backend.
func (s *SQLite) Remove(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return doerrors.BackendUnavailable(s.Name(), errIndexClosed)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE filename = ?`, filename)
	return err
}

func quoteFTS(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// Search implements Backend.
func (s *SQLite) Search(ctx context.Context, q textmatch.Query, eligible []string, limit int) ([]Hit, error) {
	if q.Empty() || len(eligible) == 0 {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = len(eligible)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(eligible)), ",")
	args := make([]any, 0, len(eligible)+5)

	var stmt string
	if utf8.RuneCountInString(q.Term) >= trigramMinRunes {
		stmt = `SELECT filename, title, description, content FROM documents
			WHERE documents MATCH ? AND filename IN (` + placeholders + `)
			ORDER BY bm25(documents), filename LIMIT ?`
		args = append(args, quoteFTS(q.Term))
	} else {
		stmt = `SELECT filename, title, description, content FROM documents
			WHERE (filename LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\'
				OR description LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')
			AND filename IN (` + placeholders + `)
			ORDER BY filename LIMIT ?`
		pattern := escapeLike(q.Term)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	for _, name := range eligible {
		args = append(args, name)
	}
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, doerrors.BackendUnavailable(s.Name(), errIndexClosed)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var filename, title, description, content string
		if err := rows.Scan(&filename, &title, &description, &content); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, Hit{
			Filename: filename,
			Snippet:  localSnippet(q.Term, s.window, content, title, description, filename),
		})
	}
	return hits, rows.Err()
}

// Close implements Backend.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
