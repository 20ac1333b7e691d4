package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voltassist/internal/domain"
)

const sampleCorpus = `[
  {"id": 1, "question": "How do I reset my password?", "answer": "Use the reset link.", "category": "Account"},
  {"id": 2, "question": "When will I get my refund?", "answer": "Within 5 business days.", "category": "Billing"},
  {"id": "ship-1", "question": "Do you ship abroad?", "answer": "Yes, to 40 countries.", "category": "Shipping"},
  {"id": 4, "question": "Can I change my email?", "answer": "Yes, in settings.", "category": "Account"}
]`

func writeCorpus(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "faqs.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_RecordsAndCategories(t *testing.T) {
	c, err := Load(writeCorpus(t, t.TempDir(), sampleCorpus))
	require.NoError(t, err)

	records := c.Records()
	require.Len(t, records, 4)
	assert.Equal(t, domain.RecordID("1"), records[0].ID)
	assert.Equal(t, domain.RecordID("ship-1"), records[2].ID)

	assert.Equal(t, []string{"Account", "Billing", "Shipping"}, c.Categories())
	assert.True(t, c.HasCategory("Billing"))
	assert.False(t, c.HasCategory("billing"))
	assert.Equal(t, "Do you ship abroad?", c.Questions()[2])
}

func TestLoad_CategoriesAreACopy(t *testing.T) {
	c, err := Load(writeCorpus(t, t.TempDir(), sampleCorpus))
	require.NoError(t, err)

	cats := c.Categories()
	cats[0] = "Mutated"
	assert.Equal(t, "Account", c.Categories()[0])
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "unparsable", content: `{not json`, wantMsg: "parse"},
		{name: "empty", content: `[]`, wantMsg: "empty"},
		{name: "missing answer", content: `[{"id":1,"question":"q","category":"c"}]`, wantMsg: "answer"},
		{name: "blank category", content: `[{"id":1,"question":"q","answer":"a","category":"  "}]`, wantMsg: "category"},
		{name: "missing id", content: `[{"question":"q","answer":"a","category":"c"}]`, wantMsg: "id"},
		{name: "duplicate id", content: `[{"id":1,"question":"q","answer":"a","category":"c"},{"id":"1","question":"q2","answer":"a2","category":"c"}]`, wantMsg: "duplicate id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeCorpus(t, t.TempDir(), tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrCorpusLoad))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCorpusLoad)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReload_KeepsSnapshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpus(t, dir, sampleCorpus)
	c, err := Load(path)
	require.NoError(t, err)

	writeCorpus(t, dir, `broken`)
	require.Error(t, c.Reload())
	assert.Len(t, c.Records(), 4)

	writeCorpus(t, dir, `[{"id":9,"question":"q","answer":"a","category":"Returns"}]`)
	require.NoError(t, c.Reload())
	assert.Equal(t, []string{"Returns"}, c.Categories())
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpus(t, dir, sampleCorpus)
	c, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan struct{}, 4)
	require.NoError(t, c.Watch(ctx, zap.NewNop(), func() { reloaded <- struct{}{} }))

	writeCorpus(t, dir, `[{"id":9,"question":"q","answer":"a","category":"Returns"}]`)

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("corpus was not reloaded")
	}
	assert.Eventually(t, func() bool { return c.HasCategory("Returns") }, 2*time.Second, 20*time.Millisecond)
}
