// Package corpus loads the FAQ document and keeps the derived category list.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"voltassist/internal/domain"
)

var validate = validator.New()

// Corpus is an in-memory snapshot of the FAQ document. The category list is
// computed once per load and only changes on Reload.
type Corpus struct {
	path string

	mu         sync.RWMutex
	records    []domain.Record
	categories []string
	known      map[string]struct{}
}

// Load reads and validates the corpus document at path.
func Load(path string) (*Corpus, error) {
	c := &Corpus{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the document. On failure the previous snapshot is kept.
func (c *Corpus) Reload() error {
	records, err := readRecords(c.path)
	if err != nil {
		return domain.NewPipelineError("corpus.load", domain.ErrCorpusLoad, err)
	}
	known := make(map[string]struct{})
	for _, r := range records {
		known[r.Category] = struct{}{}
	}
	categories := make([]string, 0, len(known))
	for cat := range known {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	c.mu.Lock()
	c.records = records
	c.categories = categories
	c.known = known
	c.mu.Unlock()
	return nil
}

// Path returns the location of the corpus document.
func (c *Corpus) Path() string { return c.path }

// Records returns a copy of the loaded records in document order.
func (c *Corpus) Records() []domain.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Record, len(c.records))
	copy(out, c.records)
	return out
}

// Categories returns the sorted distinct category labels.
func (c *Corpus) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// HasCategory reports whether category is an exact category label of the corpus.
func (c *Corpus) HasCategory(category string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.known[category]
	return ok
}

// Questions returns the question text of every record, used to prepare local embedders.
func (c *Corpus) Questions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.records))
	for i, r := range c.records {
		out[i] = r.Question
	}
	return out
}

func readRecords(path string) ([]domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []domain.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, errors.New("corpus is empty")
	}
	seen := make(map[domain.RecordID]int, len(records))
	for i := range records {
		r := &records[i]
		r.Question = strings.TrimSpace(r.Question)
		r.Answer = strings.TrimSpace(r.Answer)
		r.Category = strings.TrimSpace(r.Category)
		if err := validate.Struct(r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, describe(err))
		}
		if prev, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("record %d: duplicate id %q (first seen at record %d)", i, r.ID, prev)
		}
		seen[r.ID] = i
	}
	return records, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, strings.ToLower(fe.Field()))
	}
	return fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
}
