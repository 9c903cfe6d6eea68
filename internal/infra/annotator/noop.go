package annotator

import (
	"context"
	"fmt"
	"strings"

	"flashcard-pipeline/internal/domain/entity"
)

// NoOp is an annotator that fabricates deterministic annotations without
// calling any API. Useful for dry runs and development.
type NoOp struct{}

// NewNoOp creates a NoOp annotator.
func NewNoOp() *NoOp {
	return &NoOp{}
}

// Analyze returns a placeholder analysis derived from the item itself.
func (n *NoOp) Analyze(_ context.Context, item entity.WorkItem) (*entity.Analysis, error) {
	return &entity.Analysis{
		Term:         item.Term,
		Type:         item.Type,
		PartOfSpeech: item.Type,
		Romanization: strings.ToLower(item.Term),
		Definitions:  []string{fmt.Sprintf("placeholder definition for %s", item.Term)},
	}, nil
}

// GenerateCard returns a placeholder card derived from the analysis.
func (n *NoOp) GenerateCard(_ context.Context, item entity.WorkItem, analysis *entity.Analysis) (*entity.Flashcard, error) {
	back := ""
	if len(analysis.Definitions) > 0 {
		back = analysis.Definitions[0]
	}
	return &entity.Flashcard{
		Term:  item.Term,
		Type:  item.Type,
		Front: fmt.Sprintf("%s (%s)", item.Term, item.Type),
		Back:  back,
	}, nil
}
