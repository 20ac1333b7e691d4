// Package prompt turns a customer question and the retrieved FAQ excerpts into
// the message pair sent to the chat model.
package prompt

import (
	"fmt"
	"strings"

	"voltassist/internal/domain"
)

const (
	DefaultLanguage  = "English"
	NoExcerptsMarker = "No matching excerpts found."
)

const defaultPersona = "You are %s, a helpful AI assistant for an online electronics store. " +
	"Use the product manuals and FAQ excerpts below to answer customer questions accurately."

// Assembler renders prompts for one assistant persona.
type Assembler struct {
	name string
}

func NewAssembler(assistantName string) *Assembler {
	if assistantName == "" {
		assistantName = "VoltAssist"
	}
	return &Assembler{name: assistantName}
}

// Prompt keeps each part of the system instruction separately so callers can
// inspect them without parsing the rendered text.
type Prompt struct {
	Persona  string
	Excerpts string
	Fallback string
	Language string
	Query    string
}

// Assemble builds the prompt. It is deterministic: equal inputs give equal output.
func (a *Assembler) Assemble(query string, matches []domain.Match, category, language string) Prompt {
	return Prompt{
		Persona:  fmt.Sprintf(defaultPersona, a.name),
		Excerpts: excerpts(matches),
		Fallback: fallback(category),
		Language: languageDirective(language),
		Query:    query,
	}
}

// System renders the system message content.
func (p Prompt) System() string {
	var sb strings.Builder
	sb.WriteString(p.Persona)
	sb.WriteString("\n\n---\n")
	sb.WriteString(p.Excerpts)
	sb.WriteString("\n---\n\n")
	sb.WriteString(p.Fallback)
	sb.WriteString("\n")
	sb.WriteString(p.Language)
	return sb.String()
}

// Messages renders exactly two messages: the system instruction and the user query.
func (p Prompt) Messages() []domain.Message {
	return []domain.Message{
		domain.SystemMessage(p.System()),
		domain.UserMessage(p.Query),
	}
}

func excerpts(matches []domain.Match) string {
	if len(matches) == 0 {
		return NoExcerptsMarker
	}
	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Excerpt %d:\nQuestion: %s\nAnswer: %s", i+1, m.Question, m.Answer)
	}
	return sb.String()
}

func fallback(category string) string {
	const admit = "If the answer is not in the excerpts, say truthfully that you don't have enough information"
	if category == "" {
		return admit + " and suggest selecting the relevant category first to get a better response."
	}
	return fmt.Sprintf("%s and suggest verifying that the %q category is the right one for the question.", admit, category)
}

func languageDirective(language string) string {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return fmt.Sprintf("Answer in %s.", language)
}
