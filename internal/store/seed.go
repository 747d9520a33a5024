package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
)

// SeedRecord is one entry of a seed file.
type SeedRecord struct {
	ID      document.LooseID `json:"id"`
	Title   string           `json:"title"`
	Content string           `json:"content"`
}

// Seed inserts the records in path when s is empty and returns how many were
// written. A non-empty store is left untouched.
func Seed(ctx context.Context, s Store, path string) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}
	var records []SeedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("%w: parsing seed file %s: %w", apperrors.ErrInvalidInput, path, err)
	}
	inserted := 0
	for _, r := range records {
		doc := document.Document{
			ID:     string(r.ID),
			Fields: map[string]string{"title": r.Title, "content": r.Content},
		}
		if _, err := s.Insert(ctx, doc); err != nil {
			if errors.Is(err, apperrors.ErrDocumentExists) {
				continue
			}
			return inserted, err
		}
		inserted++
	}
	slog.Info("store seeded", "path", path, "documents", inserted)
	return inserted, nil
}
