package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
)

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.Insert(ctx, document.Document{Fields: map[string]string{"title": "Ma Trận", "content": "phim"}})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("Insert did not assign an id")
	}
	if _, err := m.Insert(ctx, created); !errors.Is(err, apperrors.ErrDocumentExists) {
		t.Errorf("duplicate Insert = %v", err)
	}

	updated, err := m.FindByIDAndUpdate(ctx, created.ID, document.Document{Fields: map[string]string{"title": "", "content": "khoa học"}})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Fields["title"] != "Ma Trận" || updated.Fields["content"] != "khoa học" {
		t.Errorf("partial update = %+v", updated.Fields)
	}

	got, err := m.FindByIDs(ctx, []string{created.ID, "missing"})
	if err != nil || len(got) != 1 {
		t.Fatalf("FindByIDs = %v, %v", got, err)
	}

	if _, err := m.FindByIDAndDelete(ctx, created.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.FindByIDAndDelete(ctx, created.ID); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("second delete = %v", err)
	}
	if _, err := m.FindByIDAndUpdate(ctx, created.ID, document.Document{}); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("update after delete = %v", err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	doc := document.Document{ID: "1", Fields: map[string]string{"title": "a"}}
	if err := m.Put(ctx, doc); err != nil {
		t.Fatal(err)
	}
	doc.Fields["title"] = "mutated"
	all, _ := m.FindAll(ctx)
	all[0].Fields["title"] = "mutated too"
	again, _ := m.FindAll(ctx)
	if again[0].Fields["title"] != "a" {
		t.Errorf("store shares maps with callers: %q", again[0].Fields["title"])
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "documents.json")
	seed := `[{"id":1,"title":"Ma Trận","content":"phim khoa học"},{"id":"2","title":"Inception","content":"dreams"}]`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewMemory()
	n, err := Seed(ctx, m, path)
	if err != nil || n != 2 {
		t.Fatalf("Seed = %d, %v", n, err)
	}
	if n, _ := Seed(ctx, m, path); n != 0 {
		t.Errorf("second Seed inserted %d, want 0", n)
	}
	docs, _ := m.FindByIDs(ctx, []string{"1"})
	if docs["1"].Fields["title"] != "Ma Trận" {
		t.Errorf("seeded doc = %+v", docs["1"])
	}
}
