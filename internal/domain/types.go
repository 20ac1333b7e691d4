package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RecordID is the stable identifier of an FAQ record. The corpus may carry it
// as a JSON number or string; it is kept in its canonical string form.
type RecordID string

// UnmarshalJSON accepts both numeric and string identifiers.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record id must be a number or string: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

func (id RecordID) String() string { return string(id) }

// Record is one FAQ entry of the corpus.
type Record struct {
	ID       RecordID `json:"id" validate:"required"`
	Question string   `json:"question" validate:"required"`
	Answer   string   `json:"answer" validate:"required"`
	Category string   `json:"category" validate:"required"`
}

// Field returns the payload value stored under key, used for equality filters.
func (r Record) Field(key string) (string, bool) {
	switch key {
	case PayloadID:
		return string(r.ID), true
	case PayloadQuestion:
		return r.Question, true
	case PayloadAnswer:
		return r.Answer, true
	case PayloadCategory:
		return r.Category, true
	}
	return "", false
}

// Payload field names shared by every vector store.
const (
	PayloadID       = "id"
	PayloadQuestion = "question"
	PayloadAnswer   = "answer"
	PayloadCategory = "category"
)

// Point is a record together with its embedding, the unit of ingestion.
type Point struct {
	Record Record
	Vector []float64
}

// Filter holds equality constraints on payload fields. A nil or empty filter matches everything.
type Filter map[string]string

// CategoryFilter returns a filter on the category field, or nil for an empty category.
func CategoryFilter(category string) Filter {
	if category == "" {
		return nil
	}
	return Filter{PayloadCategory: category}
}

// Matches reports whether the record satisfies every constraint of the filter.
func (f Filter) Matches(r Record) bool {
	for k, want := range f {
		got, ok := r.Field(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Match is a retrieved record with its similarity score. Higher is more relevant.
type Match struct {
	ID       RecordID `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Category string   `json:"category"`
	Score    float64  `json:"score"`
}

// NewMatch builds a match from a stored record.
func NewMatch(r Record, score float64) Match {
	return Match{ID: r.ID, Question: r.Question, Answer: r.Answer, Category: r.Category, Score: score}
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged block of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }
