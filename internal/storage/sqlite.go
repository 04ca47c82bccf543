package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shika/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	inMemory := dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:")
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	dsn := dbPath
	if !inMemory && !strings.Contains(dbPath, "?") {
		dsn += "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s, err := NewWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an open database handle and initializes the schema.
func NewWithDB(db *sql.DB) (*SQLiteStorage, error) {
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_entries (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		category TEXT,
		source TEXT NOT NULL,
		source_url TEXT,
		embedding TEXT,
		embedding_model TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_entries_source_question ON knowledge_entries(source, question);
	CREATE INDEX IF NOT EXISTS idx_entries_category ON knowledge_entries(category);
	CREATE INDEX IF NOT EXISTS idx_entries_active ON knowledge_entries(active);

	CREATE TABLE IF NOT EXISTS search_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		query TEXT NOT NULL,
		k INTEGER NOT NULL,
		threshold REAL NOT NULL,
		result_ids TEXT,
		scores TEXT,
		duration_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_search_logs_session ON search_logs(session_id);
	`
	_, err := db.Exec(schema)
	return err
}

const entryColumns = `id, question, answer, category, source, source_url, embedding, embedding_model, active, created_at, updated_at`

// activeOnly builds a WHERE clause that always includes the active predicate, so no read path
// can forget to hide soft-deleted entries.
func activeOnly(conds ...string) string {
	return " WHERE " + strings.Join(append([]string{"active = 1"}, conds...), " AND ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.KnowledgeEntry, error) {
	var e models.KnowledgeEntry
	var category, sourceURL, embedding, model sql.NullString
	var active int
	if err := row.Scan(&e.ID, &e.Question, &e.Answer, &category, &e.Source, &sourceURL,
		&embedding, &model, &active, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Category = category.String
	e.SourceURL = sourceURL.String
	e.EmbeddingModel = model.String
	e.Active = active == 1
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &e.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding of %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]*models.KnowledgeEntry, error) {
	defer rows.Close()
	var entries []*models.KnowledgeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func encodeEmbedding(v []float32) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const insertEntry = `INSERT INTO knowledge_entries (` + entryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func entryArgs(e *models.KnowledgeEntry) ([]any, error) {
	emb, err := encodeEmbedding(e.Embedding)
	if err != nil {
		return nil, err
	}
	return []any{e.ID, e.Question, e.Answer, nullString(e.Category), e.Source, nullString(e.SourceURL),
		emb, nullString(e.EmbeddingModel), boolInt(e.Active), e.CreatedAt, e.UpdatedAt}, nil
}

// CreateEntry inserts an entry, stamping its timestamps and marking it active.
func (s *SQLiteStorage) CreateEntry(ctx context.Context, e *models.KnowledgeEntry) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Active = true
	args, err := entryArgs(e)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertEntry, args...); err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// BatchCreateEntries inserts multiple entries in a transaction.
func (s *SQLiteStorage) BatchCreateEntries(ctx context.Context, entries []*models.KnowledgeEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEntry)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		e.CreatedAt = now
		e.UpdatedAt = now
		e.Active = true
		args, err := entryArgs(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// GetEntry returns an active entry by ID.
func (s *SQLiteStorage) GetEntry(ctx context.Context, id string) (*models.KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries`+activeOnly("id = ?"), id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetEntries returns the active entries among ids keyed by ID. Missing or inactive ids are absent.
func (s *SQLiteStorage) GetEntries(ctx context.Context, ids []string) (map[string]*models.KnowledgeEntry, error) {
	out := make(map[string]*models.KnowledgeEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries`+activeOnly("id IN ("+placeholders+")"), args...)
	if err != nil {
		return nil, err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.ID] = e
	}
	return out, nil
}

// UpdateEntry writes the text, category and embedding of an active entry.
func (s *SQLiteStorage) UpdateEntry(ctx context.Context, e *models.KnowledgeEntry) error {
	emb, err := encodeEmbedding(e.Embedding)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_entries SET question = ?, answer = ?, category = ?, embedding = ?, embedding_model = ?, updated_at = ?`+
			activeOnly("id = ?"),
		e.Question, e.Answer, nullString(e.Category), emb, nullString(e.EmbeddingModel), e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, e.ID)
	}
	return nil
}

// UpdateEmbeddings replaces embeddings of active entries in a transaction. Entries deactivated
// in the meantime are left alone.
func (s *SQLiteStorage) UpdateEmbeddings(ctx context.Context, updates []EmbeddingUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE knowledge_entries SET embedding = ?, embedding_model = ?, updated_at = ?`+activeOnly("id = ?"))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, u := range updates {
		emb, err := encodeEmbedding(u.Embedding)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, emb, nullString(u.Model), now, u.ID); err != nil {
			return fmt.Errorf("failed to update embedding of %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// DeactivateEntry soft-deletes an active entry. The row and its embedding are kept.
func (s *SQLiteStorage) DeactivateEntry(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_entries SET active = 0, updated_at = ?`+activeOnly("id = ?"), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate entry: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ListEntries returns active entries matching filter, newest first.
func (s *SQLiteStorage) ListEntries(ctx context.Context, filter models.ListFilter) ([]*models.KnowledgeEntry, error) {
	filter.Normalize()
	var conds []string
	var args []any
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, filter.Source)
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries`+activeOnly(conds...)+
			` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListActiveEntries returns every active entry in creation order.
func (s *SQLiteStorage) ListActiveEntries(ctx context.Context) ([]*models.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries`+activeOnly()+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// FindEntry returns the entry with the given question and source, preferring active rows, then the oldest.
func (s *SQLiteStorage) FindEntry(ctx context.Context, question, source string) (*models.KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries WHERE question = ? AND source = ?
		 ORDER BY active DESC, created_at LIMIT 1`, question, source)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q from %s", ErrNotFound, question, source)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLiteStorage) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT `+column+` FROM knowledge_entries`+
			activeOnly(column+" IS NOT NULL", column+" != ''")+` ORDER BY `+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// ListCategories returns the distinct categories of active entries.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "category")
}

// ListSources returns the distinct sources of active entries.
func (s *SQLiteStorage) ListSources(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "source")
}

// CountEntries counts active or inactive entries.
func (s *SQLiteStorage) CountEntries(ctx context.Context, active bool) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_entries WHERE active = ?`, boolInt(active)).Scan(&count)
	return count, err
}

func (s *SQLiteStorage) countBy(ctx context.Context, column string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(`+column+`, ''), COUNT(*) FROM knowledge_entries`+activeOnly()+` GROUP BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// CountByCategory counts active entries per category; uncategorized entries count under "".
func (s *SQLiteStorage) CountByCategory(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, "category")
}

// CountBySource counts active entries per source.
func (s *SQLiteStorage) CountBySource(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, "source")
}

// LogSearch records a search made on behalf of a chat session.
func (s *SQLiteStorage) LogSearch(ctx context.Context, log *models.SearchLog) error {
	ids, err := json.Marshal(log.ResultIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal result ids: %w", err)
	}
	scores, err := json.Marshal(log.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_logs (session_id, query, k, threshold, result_ids, scores, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.SessionID, log.Query, log.Limit, log.Threshold, string(ids), string(scores), log.DurationMS, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log search: %w", err)
	}
	return nil
}

// SearchLogs returns the logged searches of a session, oldest first.
func (s *SQLiteStorage) SearchLogs(ctx context.Context, sessionID string) ([]*models.SearchLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, query, k, threshold, result_ids, scores, duration_ms, created_at
		 FROM search_logs WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []*models.SearchLog
	for rows.Next() {
		var l models.SearchLog
		var ids, scores string
		if err := rows.Scan(&l.SessionID, &l.Query, &l.Limit, &l.Threshold, &ids, &scores, &l.DurationMS, &l.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(ids), &l.ResultIDs)
		_ = json.Unmarshal([]byte(scores), &l.Scores)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
