package annotator

import (
	"fmt"
	"strings"

	"flashcard-pipeline/internal/domain/entity"
)

// buildAnalysisPrompt constructs the stage-1 prompt. The model is instructed
// to return a single JSON object so the response parses directly into
// entity.Analysis.
func buildAnalysisPrompt(item entity.WorkItem) string {
	return fmt.Sprintf(`You are a Korean language expert. Analyze the Korean vocabulary term below.

Term: %s
Type: %s

Respond with ONLY a JSON object (no prose, no code fences) with these fields:
{
  "term": "the term exactly as given",
  "type": "the type exactly as given",
  "part_of_speech": "noun|verb|adjective|adverb|interjection|particle|...",
  "romanization": "Revised Romanization",
  "definitions": ["primary English definition", "secondary definition if any"],
  "nuances": "usage nuances, connotations, common collocations",
  "register_level": "formal|polite|casual|intimate",
  "example_korean": "one natural example sentence in Korean",
  "example_english": "its English translation"
}`, item.Term, item.Type)
}

// buildCardPrompt constructs the stage-2 prompt from the item and its
// stage-1 analysis.
func buildCardPrompt(item entity.WorkItem, analysis *entity.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a flashcard author for Korean learners. Using the analysis below, write one flashcard.

Term: %s
Type: %s
Part of speech: %s
Romanization: %s
Definitions: %s
`, item.Term, item.Type, analysis.PartOfSpeech, analysis.Romanization,
		strings.Join(analysis.Definitions, "; "))

	if analysis.Nuances != "" {
		fmt.Fprintf(&b, "Nuances: %s\n", analysis.Nuances)
	}
	if analysis.RegisterLevel != "" {
		fmt.Fprintf(&b, "Register: %s\n", analysis.RegisterLevel)
	}

	b.WriteString(`
Respond with ONLY a JSON object (no prose, no code fences):
{
  "term": "the term exactly as given",
  "type": "the type exactly as given",
  "front": "card front: the term with a minimal recognition cue",
  "back": "card back: concise meaning, romanization, and one example",
  "tags": "comma-separated topical tags",
  "honorific": "honorific or politeness note if relevant, else empty"
}`)
	return b.String()
}

// extractJSON strips optional markdown code fences from a model response,
// returning the raw JSON payload. Models occasionally fence their output
// despite instructions.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
