// Package store holds the authoritative copy of every document. The index and
// cache are derived from it and rebuilt from FindAll on startup.
package store

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
)

// Store is the document store a search node writes through. Unknown ids fail
// with apperrors.ErrDocumentNotFound; an unreachable backend fails with
// apperrors.ErrStoreUnavailable.
type Store interface {
	FindAll(ctx context.Context) ([]document.Document, error)
	// FindByIDs returns the documents that exist among ids, keyed by id.
	FindByIDs(ctx context.Context, ids []string) (map[string]document.Document, error)
	// Insert stores a new document, assigning an id when doc.ID is empty.
	// An existing id fails with apperrors.ErrDocumentExists.
	Insert(ctx context.Context, doc document.Document) (document.Document, error)
	// FindByIDAndUpdate merges patch onto the stored document (see
	// document.Merge) and returns the result.
	FindByIDAndUpdate(ctx context.Context, id string, patch document.Document) (document.Document, error)
	FindByIDAndDelete(ctx context.Context, id string) (document.Document, error)
	// Put writes doc as given, creating or replacing it. Replicated intents
	// use it so that a peer's copy converges on the origin's version.
	Put(ctx context.Context, doc document.Document) error
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
