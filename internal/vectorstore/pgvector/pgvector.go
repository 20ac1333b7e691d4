package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"voltassist/internal/domain"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var filterColumns = map[string]string{
	domain.PayloadID:       "id",
	domain.PayloadQuestion: "question",
	domain.PayloadAnswer:   "answer",
	domain.PayloadCategory: "category",
}

// Storage is a PostgreSQL vector store backed by the pgvector extension.
// Scoring happens in the database as 1 - cosine distance.
type Storage struct {
	db        *sql.DB
	table     string
	dimension int
}

// NewStorage connects to PostgreSQL through the pgx driver.
func NewStorage(ctx context.Context, dsn, table string) (*Storage, error) {
	if dsn == "" {
		return nil, errors.New("pgvector: empty dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewWithDB(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle.
func NewWithDB(db *sql.DB, table string) (*Storage, error) {
	if table == "" {
		table = "faq_vectors"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", table)
	}
	return &Storage{db: db, table: table}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Init creates the extension, the table sized for dimension and its indexes.
// An existing table keeps its column type; a mismatch surfaces on Upsert.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			category TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_category ON %s (category)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if s.dimension != 0 && len(p.Vector) != s.dimension {
			return fmt.Errorf("record %s: vector dimension %d, expected %d", p.Record.ID, len(p.Vector), s.dimension)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, question, answer, category, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			question = EXCLUDED.question,
			answer = EXCLUDED.answer,
			category = EXCLUDED.category,
			embedding = EXCLUDED.embedding`, s.table)
	for _, p := range points {
		r := p.Record
		if _, err := tx.ExecContext(ctx, stmt, r.ID.String(), r.Question, r.Answer, r.Category, formatVector(p.Vector)); err != nil {
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
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
	where, args, ok := whereClause(filter, 2)
	if !ok {
		return []domain.Match{}, nil
	}
	query := fmt.Sprintf(`
		SELECT id, question, answer, category, 1 - (embedding <=> $1) AS score
		FROM %s%s
		ORDER BY embedding <=> $1, id
		LIMIT $%d`, s.table, where, len(args)+2)
	args = append([]any{formatVector(vector)}, args...)
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	results := []domain.Match{}
	for rows.Next() {
		var r domain.Record
		var id string
		var score float64
		if err := rows.Scan(&id, &r.Question, &r.Answer, &r.Category, &score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.ID = domain.RecordID(id)
		results = append(results, domain.NewMatch(r, score))
	}
	return results, rows.Err()
}

func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`TRUNCATE TABLE %s`, s.table))
	return err
}

// whereClause renders the filter with placeholders numbered from first.
func whereClause(filter domain.Filter, first int) (string, []any, bool) {
	if len(filter) == 0 {
		return "", nil, true
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		col, ok := filterColumns[k]
		if !ok {
			return "", nil, false
		}
		conds = append(conds, fmt.Sprintf("%s = $%d", col, first+i))
		args = append(args, filter[k])
	}
	return " WHERE " + strings.Join(conds, " AND "), args, true
}

// formatVector renders a pgvector literal such as "[0.1,0.2,0.3]".
func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
