package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltassist/internal/domain"
)

var sampleMatches = []domain.Match{
	{ID: "1", Question: "How do I reset my password?", Answer: "Use the reset link.", Category: "Account", Score: 0.92},
	{ID: "4", Question: "Can I change my email?", Answer: "Yes, in settings.", Category: "Account", Score: 0.41},
}

func TestAssemble_TwoMessages(t *testing.T) {
	p := NewAssembler("VoltAssist").Assemble("How do I reset my password?", sampleMatches, "Account", "English")
	msgs := p.Messages()

	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Equal(t, "How do I reset my password?", msgs[1].Content)
	assert.Contains(t, msgs[0].Content, "You are VoltAssist")
}

func TestAssemble_ExcerptsInMatchOrder(t *testing.T) {
	p := NewAssembler("").Assemble("reset", sampleMatches, "", "")

	assert.Equal(t, "Excerpt 1:\nQuestion: How do I reset my password?\nAnswer: Use the reset link.\n\n"+
		"Excerpt 2:\nQuestion: Can I change my email?\nAnswer: Yes, in settings.", p.Excerpts)
	assert.Contains(t, p.System(), p.Excerpts)
}

func TestAssemble_NoExcerptsMarker(t *testing.T) {
	for _, matches := range [][]domain.Match{nil, {}} {
		p := NewAssembler("").Assemble("anything", matches, "", "English")
		assert.Equal(t, NoExcerptsMarker, p.Excerpts)
		assert.Contains(t, p.Messages()[0].Content, NoExcerptsMarker)
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	a := NewAssembler("VoltAssist")
	first := a.Assemble("Do you ship abroad?", sampleMatches, "Shipping", "French").Messages()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, a.Assemble("Do you ship abroad?", sampleMatches, "Shipping", "French").Messages())
	}
}

func TestAssemble_LanguageDirective(t *testing.T) {
	for _, lang := range []string{"English", "Spanish", "French"} {
		t.Run(lang, func(t *testing.T) {
			p := NewAssembler("").Assemble("q", sampleMatches, "", lang)
			assert.Equal(t, "Answer in "+lang+".", p.Language)
			assert.Contains(t, p.Messages()[0].Content, "Answer in "+lang+".")
		})
	}
	assert.Equal(t, "Answer in English.", NewAssembler("").Assemble("q", nil, "", " ").Language)
}

func TestAssemble_FallbackMentionsCategory(t *testing.T) {
	a := NewAssembler("")

	withCategory := a.Assemble("q", nil, "Billing", "")
	assert.Contains(t, withCategory.Fallback, `"Billing"`)
	assert.Contains(t, withCategory.Fallback, "don't have enough information")

	without := a.Assemble("q", nil, "", "")
	assert.Contains(t, without.Fallback, "relevant category")
}

func TestAssemble_QueryKeptVerbatim(t *testing.T) {
	query := "  Where's my order #1234?\n"
	p := NewAssembler("").Assemble(query, nil, "", "")
	assert.Equal(t, query, p.Messages()[1].Content)
}
