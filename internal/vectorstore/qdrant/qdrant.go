package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"voltassist/internal/domain"
	"voltassist/internal/remote"
)

// ErrCollectionNotFound is returned when the configured collection does not exist.
var ErrCollectionNotFound = errors.New("qdrant collection not found")

// pointNamespace seeds the UUIDs derived from non-numeric record ids.
var pointNamespace = uuid.MustParse("6f1c2f2e-7d5b-4b8e-9f57-0c54a7f0b6a1")

// Storage is a minimal REST client to Qdrant. The collection uses cosine
// distance and a keyword index on the category payload field.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "faq_collection"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init provisions the collection and the category payload index.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	// An existing collection is answered with 409; its schema is left untouched.
	if err != nil && !remote.IsStatus(err, http.StatusConflict) {
		return err
	}
	index := map[string]any{
		"field_name":   domain.PayloadCategory,
		"field_schema": "keyword",
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), index, nil)
}

func (s *Storage) Upsert(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	out := make([]map[string]any, len(points))
	for i, p := range points {
		out[i] = map[string]any{
			"id":     PointID(p.Record.ID),
			"vector": p.Vector,
			"payload": map[string]any{
				domain.PayloadID:       p.Record.ID.String(),
				domain.PayloadQuestion: p.Record.Question,
				domain.PayloadAnswer:   p.Record.Answer,
				domain.PayloadCategory: p.Record.Category,
			},
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": out}, nil)
}

func (s *Storage) Search(ctx context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		if remote.IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrCollectionNotFound, s.collection, err)
		}
		return nil, err
	}
	results := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.NewMatch(recordFromPayload(r.Payload), r.Score))
	}
	return results, nil
}

// Clear drops the collection.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if remote.IsStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// PointID maps a record id onto a Qdrant point id: canonical unsigned integers
// pass through, anything else (including "007") becomes a deterministic UUIDv5.
func PointID(id domain.RecordID) any {
	if n, err := strconv.ParseUint(id.String(), 10, 64); err == nil && strconv.FormatUint(n, 10) == id.String() {
		return n
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

func buildFilter(filter domain.Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": filter[k]},
		})
	}
	return map[string]any{"must": must}
}

func recordFromPayload(payload map[string]any) domain.Record {
	var r domain.Record
	switch v := payload[domain.PayloadID].(type) {
	case string:
		r.ID = domain.RecordID(v)
	case float64:
		r.ID = domain.RecordID(strconv.FormatFloat(v, 'f', -1, 64))
	}
	if v, ok := payload[domain.PayloadQuestion].(string); ok {
		r.Question = v
	}
	if v, ok := payload[domain.PayloadAnswer].(string); ok {
		r.Answer = v
	}
	if v, ok := payload[domain.PayloadCategory].(string); ok {
		r.Category = v
	}
	return r
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return remote.FromResponse(fmt.Sprintf("qdrant %s %s", method, url), resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
