package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"voltassist/internal/domain"
	"voltassist/internal/vectorstore"
)

// filterColumns maps payload keys onto table columns. Unknown keys never match.
var filterColumns = map[string]string{
	domain.PayloadID:       "id",
	domain.PayloadQuestion: "question",
	domain.PayloadAnswer:   "answer",
	domain.PayloadCategory: "category",
}

// Storage keeps FAQ vectors in a local SQLite file and scores them in process.
type Storage struct {
	db        *sqlx.DB
	dimension int
}

type row struct {
	ID        string `db:"id"`
	Question  string `db:"question"`
	Answer    string `db:"answer"`
	Category  string `db:"category"`
	Embedding string `db:"embedding"`
}

func NewStorage(path string) (*Storage, error) {
	if path == "" {
		path = "data/vectors.db"
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent requests.
	db.SetMaxOpenConns(1)
	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := s.loadDimension(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadDimension restores the dimension recorded by a previous Init, so a
// reopened store rejects query vectors of another length.
func (s *Storage) loadDimension(ctx context.Context) error {
	var stored int
	err := s.db.GetContext(ctx, &stored, `SELECT CAST(value AS INTEGER) FROM store_meta WHERE key = 'dimension'`)
	if err != nil && !isNoRows(err) {
		return fmt.Errorf("read dimension: %w", err)
	}
	s.dimension = stored
	return nil
}

func (s *Storage) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS faq_vectors (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			category TEXT NOT NULL,
			embedding TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_faq_vectors_category ON faq_vectors(category)`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Init records the vector dimension. Stored vectors of another dimension are dropped.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	var stored int
	err := s.db.GetContext(ctx, &stored, `SELECT CAST(value AS INTEGER) FROM store_meta WHERE key = 'dimension'`)
	switch {
	case err == nil && stored == dimension:
		s.dimension = dimension
		return nil
	case err != nil && !isNoRows(err):
		return fmt.Errorf("read dimension: %w", err)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM faq_vectors`); err != nil {
		return fmt.Errorf("reset vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO store_meta (key, value) VALUES ('dimension', ?)`, fmt.Sprint(dimension)); err != nil {
		return fmt.Errorf("store dimension: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, points []domain.Point) error {
	if s.dimension == 0 {
		return errors.New("storage not initialized")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return fmt.Errorf("record %s: vector dimension %d, expected %d", p.Record.ID, len(p.Vector), s.dimension)
		}
		vec, err := json.Marshal(p.Vector)
		if err != nil {
			return fmt.Errorf("marshal vector: %w", err)
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT OR REPLACE INTO faq_vectors (id, question, answer, category, embedding)
			VALUES (:id, :question, :answer, :category, :embedding)`,
			row{
				ID:        p.Record.ID.String(),
				Question:  p.Record.Question,
				Answer:    p.Record.Answer,
				Category:  p.Record.Category,
				Embedding: string(vec),
			})
		if err != nil {
			return fmt.Errorf("insert vector: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		topK = 5
	}
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension %d, expected %d", len(vector), s.dimension)
	}
	query, args, ok := selectQuery(filter)
	if !ok {
		return []domain.Match{}, nil
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	results := make([]domain.Match, 0, len(rows))
	for _, r := range rows {
		var vec []float64
		if err := json.Unmarshal([]byte(r.Embedding), &vec); err != nil {
			return nil, fmt.Errorf("record %s: decode vector: %w", r.ID, err)
		}
		rec := domain.Record{ID: domain.RecordID(r.ID), Question: r.Question, Answer: r.Answer, Category: r.Category}
		results = append(results, domain.NewMatch(rec, vectorstore.CosineSimilarity(vector, vec)))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM faq_vectors`); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}
	return nil
}

// selectQuery builds the filtered SELECT. It reports false when the filter
// names a field the table does not have, so nothing can match.
func selectQuery(filter domain.Filter) (string, []any, bool) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var where []string
	var args []any
	for _, k := range keys {
		col, ok := filterColumns[k]
		if !ok {
			return "", nil, false
		}
		where = append(where, col+" = ?")
		args = append(args, filter[k])
	}
	query := `SELECT id, question, answer, category, embedding FROM faq_vectors`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query, args, true
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
