package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
	weights    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres keeps documents in a single table with JSONB fields and weights.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgres(db *postgres.Client) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "postgres-store"),
	}
}

// EnsureSchema creates the documents table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.DB.ExecContext(ctx, schema); err != nil {
		return unavailable("creating schema", err)
	}
	return nil
}

func (p *Postgres) FindAll(ctx context.Context) ([]document.Document, error) {
	rows, err := p.db.DB.QueryContext(ctx, `SELECT id, fields, weights FROM documents ORDER BY id`)
	if err != nil {
		return nil, unavailable("listing documents", err)
	}
	defer rows.Close()
	var docs []document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating documents", err)
	}
	return docs, nil
}

func (p *Postgres) FindByIDs(ctx context.Context, ids []string) (map[string]document.Document, error) {
	out := make(map[string]document.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := p.db.DB.QueryContext(ctx,
		`SELECT id, fields, weights FROM documents WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, unavailable("fetching documents", err)
	}
	defer rows.Close()
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating documents", err)
	}
	return out, nil
}

func (p *Postgres) Insert(ctx context.Context, doc document.Document) (document.Document, error) {
	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	fields, weights, err := encode(doc)
	if err != nil {
		return document.Document{}, err
	}
	result, err := p.db.DB.ExecContext(ctx,
		`INSERT INTO documents (id, fields, weights) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		doc.ID, fields, weights,
	)
	if err != nil {
		return document.Document{}, unavailable("inserting document", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return document.Document{}, fmt.Errorf("inserting %s: %w", doc.ID, apperrors.ErrDocumentExists)
	}
	return doc, nil
}

// FindByIDAndUpdate locks the row so concurrent patches to one document do
// not lose each other's fields.
func (p *Postgres) FindByIDAndUpdate(ctx context.Context, id string, patch document.Document) (document.Document, error) {
	var updated document.Document
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id, fields, weights FROM documents WHERE id = $1 FOR UPDATE`, id)
		current, err := scanDocument(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("updating %s: %w", id, apperrors.ErrDocumentNotFound)
		}
		if err != nil {
			return err
		}
		updated = current.Merge(patch)
		fields, weights, err := encode(updated)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET fields = $2, weights = $3, updated_at = now() WHERE id = $1`,
			id, fields, weights,
		); err != nil {
			return unavailable("updating document", err)
		}
		return nil
	})
	if err != nil {
		return document.Document{}, err
	}
	return updated, nil
}

func (p *Postgres) FindByIDAndDelete(ctx context.Context, id string) (document.Document, error) {
	row := p.db.DB.QueryRowContext(ctx, `DELETE FROM documents WHERE id = $1 RETURNING id, fields, weights`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, fmt.Errorf("deleting %s: %w", id, apperrors.ErrDocumentNotFound)
	}
	return doc, err
}

func (p *Postgres) Put(ctx context.Context, doc document.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document id is required", apperrors.ErrInvalidInput)
	}
	fields, weights, err := encode(doc)
	if err != nil {
		return err
	}
	_, err = p.db.DB.ExecContext(ctx,
		`INSERT INTO documents (id, fields, weights) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET fields = EXCLUDED.fields, weights = EXCLUDED.weights, updated_at = now()`,
		doc.ID, fields, weights,
	)
	if err != nil {
		return unavailable("upserting document", err)
	}
	return nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.DB.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, unavailable("counting documents", err)
	}
	return n, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (document.Document, error) {
	var doc document.Document
	var fields, weights []byte
	if err := s.Scan(&doc.ID, &fields, &weights); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, err
		}
		return doc, unavailable("scanning document", err)
	}
	if err := json.Unmarshal(fields, &doc.Fields); err != nil {
		return doc, fmt.Errorf("decoding fields of %s: %w", doc.ID, err)
	}
	if len(weights) > 0 {
		if err := json.Unmarshal(weights, &doc.Weights); err != nil {
			return doc, fmt.Errorf("decoding weights of %s: %w", doc.ID, err)
		}
		if len(doc.Weights) == 0 {
			doc.Weights = nil
		}
	}
	return doc, nil
}

func encode(doc document.Document) (fields, weights []byte, err error) {
	if fields, err = json.Marshal(doc.Fields); err != nil {
		return nil, nil, fmt.Errorf("encoding fields: %w", err)
	}
	w := doc.Weights
	if w == nil {
		w = map[string]float64{}
	}
	if weights, err = json.Marshal(w); err != nil {
		return nil, nil, fmt.Errorf("encoding weights: %w", err)
	}
	return fields, weights, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStoreUnavailable, err)
}
