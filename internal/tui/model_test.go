package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltassist/internal/domain"
	"voltassist/internal/service"
)

type stubAnswerer struct {
	reply    string
	err      error
	category string
	language string
}

func (s *stubAnswerer) AnswerQuery(ctx context.Context, text, category, language string) (*service.Answer, error) {
	s.category = category
	s.language = language
	if s.err != nil {
		return nil, s.err
	}
	return &service.Answer{Text: s.reply, Matches: []domain.Match{{ID: "1"}}}, nil
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func submit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestModel_Greets(t *testing.T) {
	m := New(&stubAnswerer{}, Config{})
	tr := m.Transcript()
	require.Len(t, tr, 1)
	assert.Equal(t, domain.AssistantMessage(Greeting), tr[0])
	assert.Equal(t, "Loading...", m.View())
	assert.Contains(t, sized(t, m).View(), Greeting)
}

func TestModel_TurnAppendsReply(t *testing.T) {
	ans := &stubAnswerer{reply: "Use the reset link."}
	m := sized(t, New(ans, Config{Language: "Spanish", Categories: []string{"Account", "Billing"}}))

	m, cmd := submit(t, m, "  How do I reset my password? ")
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Equal(t, "", m.input.Value())
	require.Len(t, m.Transcript(), 2)
	assert.Equal(t, domain.UserMessage("How do I reset my password?"), m.Transcript()[1])

	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.pending)
	tr := m.Transcript()
	require.Len(t, tr, 3)
	assert.Equal(t, domain.AssistantMessage("Use the reset link."), tr[2])
	assert.Equal(t, "Spanish", ans.language)
	assert.Equal(t, "", ans.category)
}

func TestModel_ErrorAppendsApology(t *testing.T) {
	m := sized(t, New(&stubAnswerer{err: errors.New("embedding unavailable")}, Config{}))

	m, cmd := submit(t, m, "refund?")
	next, _ := m.Update(cmd())
	m = next.(Model)

	tr := m.Transcript()
	require.Len(t, tr, 3)
	assert.Equal(t, domain.RoleUser, tr[1].Role)
	assert.Equal(t, "Sorry, I can't answer right now: embedding unavailable", tr[2].Content)
}

func TestModel_TabCyclesCategories(t *testing.T) {
	ans := &stubAnswerer{reply: "ok"}
	m := sized(t, New(ans, Config{Categories: []string{"Account", "Billing"}}))
	assert.Equal(t, "", m.Category())

	tab := func(m Model) Model {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
		return next.(Model)
	}
	m = tab(m)
	assert.Equal(t, "Account", m.Category())
	m = tab(m)
	assert.Equal(t, "Billing", m.Category())

	_, cmd := submit(t, m, "refund")
	cmd()
	assert.Equal(t, "Billing", ans.category)

	m = tab(m)
	assert.Equal(t, "", m.Category())
}

func TestModel_IgnoresBlankAndConcurrentTurns(t *testing.T) {
	m := sized(t, New(&stubAnswerer{reply: "ok"}, Config{}))

	m, cmd := submit(t, m, "   ")
	assert.Nil(t, cmd)
	assert.Len(t, m.Transcript(), 1)

	m, cmd = submit(t, m, "first")
	require.NotNil(t, cmd)
	m, cmd = submit(t, m, "second")
	assert.Nil(t, cmd)
	assert.Len(t, m.Transcript(), 2)
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Orders ship in two days. Refunds take five business days."
	out := highlightBestSentence(text, "how long do refunds take")
	assert.Contains(t, out, "Orders ship in two days.")
	assert.Contains(t, out, "Refunds take five business days.")

	assert.Equal(t, "Single sentence.", highlightBestSentence("Single sentence.", "sentence"))
	assert.Equal(t, text, highlightBestSentence(text, "warranty"))
	assert.Contains(t, highlightBestSentence("One. Two and a tail", "tail"), "Two and a tail")
}
