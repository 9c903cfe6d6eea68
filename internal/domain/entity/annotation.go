package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Analysis is the result of the first annotation stage: semantic analysis
// of a vocabulary term. Field order is fixed so that json.Marshal produces
// deterministic bytes for content-addressed caching.
type Analysis struct {
	Term           string   `json:"term"`
	Type           string   `json:"type"`
	PartOfSpeech   string   `json:"part_of_speech"`
	Romanization   string   `json:"romanization"`
	Definitions    []string `json:"definitions"`
	Nuances        string   `json:"nuances,omitempty"`
	RegisterLevel  string   `json:"register_level,omitempty"`
	ExampleKorean  string   `json:"example_korean,omitempty"`
	ExampleEnglish string   `json:"example_english,omitempty"`
}

// MarshalCanonical serializes the analysis to its canonical byte form.
// Identical analyses always produce byte-identical output, which the cache
// relies on for write-once idempotency.
func (a *Analysis) MarshalCanonical() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis: %w", err)
	}
	return data, nil
}

// UnmarshalAnalysis decodes an Analysis from its canonical byte form.
func UnmarshalAnalysis(data []byte) (*Analysis, error) {
	var a Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	return &a, nil
}

// Flashcard is the result of the second annotation stage: a generated card
// derived from a WorkItem and its stage-1 analysis.
type Flashcard struct {
	Term      string `json:"term"`
	Type      string `json:"type"`
	Front     string `json:"front"`
	Back      string `json:"back"`
	Tags      string `json:"tags,omitempty"`
	Honorific string `json:"honorific,omitempty"`
}

// MarshalCanonical serializes the flashcard to its canonical byte form.
func (f *Flashcard) MarshalCanonical() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal flashcard: %w", err)
	}
	return data, nil
}

// UnmarshalFlashcard decodes a Flashcard from its canonical byte form.
func UnmarshalFlashcard(data []byte) (*Flashcard, error) {
	var f Flashcard
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal flashcard: %w", err)
	}
	return &f, nil
}

// ProcessedItem is the final, persisted outcome of a fully annotated WorkItem.
type ProcessedItem struct {
	Item        WorkItem
	Analysis    *Analysis
	Flashcard   *Flashcard
	ProcessedAt time.Time
}
