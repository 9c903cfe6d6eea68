package annotator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashcard-pipeline/internal/domain/entity"
)

func TestBuildAnalysisPrompt(t *testing.T) {
	item, err := entity.NewWorkItem(1, "안녕하세요", "interjection")
	require.NoError(t, err)

	prompt := buildAnalysisPrompt(item)
	assert.Contains(t, prompt, "안녕하세요")
	assert.Contains(t, prompt, "interjection")
	assert.Contains(t, prompt, "part_of_speech")
	assert.Contains(t, prompt, "romanization")
}

func TestBuildCardPrompt(t *testing.T) {
	item, err := entity.NewWorkItem(1, "먹다", "verb")
	require.NoError(t, err)
	analysis := &entity.Analysis{
		Term: "먹다", Type: "verb", PartOfSpeech: "verb",
		Romanization: "meokda",
		Definitions:  []string{"to eat", "to consume"},
		Nuances:      "casual everyday verb",
	}

	prompt := buildCardPrompt(item, analysis)
	assert.Contains(t, prompt, "먹다")
	assert.Contains(t, prompt, "meokda")
	assert.Contains(t, prompt, "to eat; to consume")
	assert.Contains(t, prompt, "casual everyday verb")
	assert.Contains(t, prompt, `"front"`)
	assert.Contains(t, prompt, `"back"`)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json", `{"term":"먹다"}`, `{"term":"먹다"}`},
		{"surrounding whitespace", "\n  {\"a\":1}  \n", `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestNoOp_RoundTrip(t *testing.T) {
	item, err := entity.NewWorkItem(1, "먹다", "verb")
	require.NoError(t, err)

	n := NewNoOp()
	analysis, err := n.Analyze(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "먹다", analysis.Term)
	require.NotEmpty(t, analysis.Definitions)

	card, err := n.GenerateCard(context.Background(), item, analysis)
	require.NoError(t, err)
	assert.Equal(t, "먹다 (verb)", card.Front)
	assert.Equal(t, analysis.Definitions[0], card.Back)

	// Deterministic: same input yields byte-identical canonical output,
	// which the cache depends on.
	again, err := n.Analyze(context.Background(), item)
	require.NoError(t, err)
	b1, err := analysis.MarshalCanonical()
	require.NoError(t, err)
	b2, err := again.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	if !strings.HasPrefix(card.Back, "placeholder") {
		t.Errorf("unexpected back: %q", card.Back)
	}
}
