package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voltassist/internal/domain"
	"voltassist/internal/service"
)

const (
	Greeting    = "How can I help you?"
	AllCategory = "All"
)

// Answerer is the TUI-facing subset of the assistant service.
type Answerer interface {
	AnswerQuery(ctx context.Context, text, category, language string) (*service.Answer, error)
}

type Config struct {
	Title      string
	Language   string
	Categories []string
	// TurnTimeout bounds one question; zero means no limit.
	TurnTimeout time.Duration
}

// Model is the Bubble Tea model for the chat session. The transcript only grows.
type Model struct {
	answerer   Answerer
	cfg        Config
	input      textinput.Model
	viewport   viewport.Model
	transcript []domain.Message
	categories []string
	catIdx     int
	status     string
	pending    bool
	ready      bool
}

type answerMsg struct {
	answer *service.Answer
	err    error
}

// New creates a chat model greeting the user.
func New(answerer Answerer, cfg Config) Model {
	if cfg.Title == "" {
		cfg.Title = "VoltAssist"
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		answerer:   answerer,
		cfg:        cfg,
		input:      ti,
		viewport:   vp,
		transcript: []domain.Message{domain.AssistantMessage(Greeting)},
		categories: append([]string{AllCategory}, cfg.Categories...),
		status:     "Tab switches category. Ctrl+C quits.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// Transcript returns a copy of the conversation so far.
func (m Model) Transcript() []domain.Message {
	return append([]domain.Message(nil), m.transcript...)
}

// Category returns the active filter, or "" for all categories.
func (m Model) Category() string {
	if c := m.categories[m.catIdx]; c != AllCategory {
		return c
	}
	return ""
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and input boxes
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		headerLines := 1
		footerLines := 1
		reserved := headerLines + footerLines + ih + 1
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.transcript = append(m.transcript, domain.AssistantMessage("Sorry, I can't answer right now: "+msg.err.Error()))
			m.status = "Error"
		} else {
			m.transcript = append(m.transcript, domain.AssistantMessage(msg.answer.Text))
			m.status = fmt.Sprintf("Answered from %d excerpt(s)", len(msg.answer.Matches))
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			m.catIdx = (m.catIdx + 1) % len(m.categories)
			m.status = "Category: " + m.categories[m.catIdx]
			return m, nil
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			m.transcript = append(m.transcript, domain.UserMessage(q))
			m.pending = true
			m.status = "Thinking..."
			m.refresh()
			return m, m.ask(q, m.Category())
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question, category string) tea.Cmd {
	answerer, language, timeout := m.answerer, m.cfg.Language, m.cfg.TurnTimeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		ans, err := answerer.AnswerQuery(ctx, question, category, language)
		return answerMsg{answer: ans, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.cfg.Title) +
		categoryStyle.Render("  ["+m.categories[m.catIdx]+"]")
	body := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	width := max(10, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)
	parts := make([]string, 0, len(m.transcript))
	lastQuestion := ""
	for _, msg := range m.transcript {
		switch msg.Role {
		case domain.RoleUser:
			lastQuestion = msg.Content
			parts = append(parts, userStyle.Render("You: ")+wrap.Render(msg.Content))
		default:
			parts = append(parts, assistantStyle.Render(m.cfg.Title+": ")+wrap.Render(highlightBestSentence(msg.Content, lastQuestion)))
		}
	}
	if m.pending {
		parts = append(parts, statusStyle.Render(m.cfg.Title+" is typing..."))
	}
	return strings.Join(parts, "\n\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	categoryStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasizes the reply sentence sharing the most words with the question.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	spans := sentenceRe.FindAllStringIndex(text, -1)
	if len(spans) < 2 {
		return text
	}
	sentences := make([]string, 0, len(spans)+1)
	for _, s := range spans {
		sentences = append(sentences, text[s[0]:s[1]])
	}
	if tail := strings.TrimSpace(text[spans[len(spans)-1][1]:]); tail != "" {
		sentences = append(sentences, tail)
	}
	bestIdx := 0
	bestScore := 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore == 0 {
		return text
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
