package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voltassist/internal/domain"
	"voltassist/internal/service"
)

type stubAssistant struct {
	answer   *service.Answer
	err      error
	question string
	category string
	language string
}

func (s *stubAssistant) AnswerQuery(ctx context.Context, text, category, language string) (*service.Answer, error) {
	s.question, s.category, s.language = text, category, language
	return s.answer, s.err
}

func (s *stubAssistant) Categories() []string { return []string{"Account", "Billing"} }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newHandler(a Assistant) http.Handler {
	return New(Config{}, a, zap.NewNop()).Routes()
}

func TestHealthz(t *testing.T) {
	w := do(t, newHandler(&stubAssistant{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCategories(t *testing.T) {
	w := do(t, newHandler(&stubAssistant{}), http.MethodGet, "/api/v1/categories", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":["Account","Billing"]}`, w.Body.String())
}

func TestAnswer_OK(t *testing.T) {
	a := &stubAssistant{answer: &service.Answer{
		Text: "Use the reset link.",
		Messages: []domain.Message{
			domain.SystemMessage("sys"),
			domain.UserMessage("How do I reset my password?"),
			domain.AssistantMessage("Use the reset link."),
		},
		Matches: []domain.Match{{ID: "1", Question: "How do I reset my password?", Answer: "Use the reset link.", Category: "Account", Score: 0.9}},
	}}
	w := do(t, newHandler(a), http.MethodPost, "/api/v1/answer",
		`{"question":"How do I reset my password?","category":"Account","language":"Spanish"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Content-Type"))

	var resp struct {
		Data struct {
			ID       string           `json:"id"`
			Answer   string           `json:"answer"`
			Messages []domain.Message `json:"messages"`
			Matches  []domain.Match   `json:"matches"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Use the reset link.", resp.Data.Answer)
	assert.Len(t, resp.Data.Messages, 3)
	require.Len(t, resp.Data.Matches, 1)
	assert.InDelta(t, 0.9, resp.Data.Matches[0].Score, 1e-9)
	_, err := uuid.Parse(resp.Data.ID)
	assert.NoError(t, err)

	assert.Equal(t, "Account", a.category)
	assert.Equal(t, "Spanish", a.language)
}

func TestAnswer_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed", body: `{"question":`, code: "bad_request"},
		{name: "unknown field", body: `{"question":"hi","brand":"x"}`, code: "bad_request"},
		{name: "missing question", body: `{"category":"Account"}`, code: "validation_failed"},
		{name: "question too long", body: `{"question":"` + strings.Repeat("a", 2001) + `"}`, code: "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &stubAssistant{answer: &service.Answer{}}
			w := do(t, newHandler(a), http.MethodPost, "/api/v1/answer", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
			assert.Empty(t, a.question)
		})
	}
}

func TestAnswer_ValidationDetailsUseJSONNames(t *testing.T) {
	w := do(t, newHandler(&stubAssistant{}), http.MethodPost, "/api/v1/answer", `{"language":"French"}`)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "question is required", resp.Details["question"])
}

func TestAnswer_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"empty query", domain.NewPipelineError("retrieve", domain.ErrEmptyQuery, nil), http.StatusBadRequest},
		{"embedding", domain.NewPipelineError("embed", domain.ErrEmbeddingUnavailable, errors.New("refused")), http.StatusServiceUnavailable},
		{"generation", domain.NewPipelineError("generate", domain.ErrGenerationUnavailable, errors.New("502")), http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newHandler(&stubAssistant{err: tt.err}), http.MethodPost, "/api/v1/answer", `{"question":"refund?"}`)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestNotFound(t *testing.T) {
	w := do(t, newHandler(&stubAssistant{}), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
