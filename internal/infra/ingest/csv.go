// Package ingest reads vocabulary batches from CSV input. Each row carries a
// term and an optional grammatical type; rows become validated WorkItems with
// 1-based batch positions.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"flashcard-pipeline/internal/domain/entity"
)

// ReadItems parses CSV rows into work items. The first row is treated as a
// header when its first column reads "term" (any case). Rows with an empty
// term are skipped with a warning rather than failing the batch; duplicate
// item IDs keep the first occurrence.
func ReadItems(r io.Reader) ([]entity.WorkItem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var items []entity.WorkItem
	seen := make(map[string]struct{})
	row := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row+1, err)
		}
		row++

		if row == 1 && isHeader(record) {
			continue
		}

		term := ""
		itemType := ""
		if len(record) > 0 {
			term = record[0]
		}
		if len(record) > 1 {
			itemType = record[1]
		}

		item, err := entity.NewWorkItem(len(items)+1, term, itemType)
		if err != nil {
			slog.Warn("skipping invalid csv row",
				slog.Int("row", row),
				slog.Any("error", err))
			continue
		}

		if _, dup := seen[item.ID()]; dup {
			slog.Warn("skipping duplicate item",
				slog.Int("row", row),
				slog.String("item", item.ID()))
			continue
		}
		seen[item.ID()] = struct{}{}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no valid work items in input")
	}
	return items, nil
}

// ReadFile reads a vocabulary batch from a CSV file on disk.
func ReadFile(path string) ([]entity.WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	items, err := ReadItems(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return items, nil
}

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "term")
}
