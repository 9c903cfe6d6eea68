// Package cache implements the two-tier result cache for annotation calls:
// a bounded in-process fast tier in front of a permanent persistent tier,
// with concurrent computations for the same key coalesced into one.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"flashcard-pipeline/internal/domain/entity"
)

// Stage names used in cache keys. Keys from different stages never collide
// because the stage is part of the key itself.
const (
	StageAnalysis = "analysis"
	StageCard     = "card"
)

// Key is a content-addressed cache key: a stage name plus a SHA-256 digest
// of the stage's complete input.
type Key struct {
	Stage  string
	Digest string
}

// String returns the storage form of the key, "stage:digest".
func (k Key) String() string {
	return k.Stage + ":" + k.Digest
}

// AnalysisKey derives the stage-1 key for a work item. Two items with the
// same term and type share a key regardless of batch position.
func AnalysisKey(item entity.WorkItem) Key {
	return Key{
		Stage:  StageAnalysis,
		Digest: digest([]byte(item.ID())),
	}
}

// CardKey derives the stage-2 key for a work item and its stage-1 analysis.
// The analysis participates via its canonical byte form, so a changed
// analysis yields a different card key.
func CardKey(item entity.WorkItem, analysis *entity.Analysis) (Key, error) {
	canonical, err := analysis.MarshalCanonical()
	if err != nil {
		return Key{}, fmt.Errorf("card key for %s: %w", item.ID(), err)
	}

	h := sha256.New()
	h.Write([]byte(item.ID()))
	h.Write([]byte{0})
	h.Write(canonical)

	return Key{
		Stage:  StageCard,
		Digest: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
