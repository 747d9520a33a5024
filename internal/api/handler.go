// Package api exposes a search node over HTTP: search, document writes,
// the peer replication endpoint and operator routes.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/replication"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/search"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/telemetry"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/logger"
)

const maxBodyBytes = 4 << 20

type Handler struct {
	svc       *search.Service
	analytics *telemetry.Handler
	limits    config.SearchConfig
	logger    *slog.Logger
}

// NewHandler serves svc. analytics may be nil when query aggregation is off.
func NewHandler(svc *search.Service, analytics *telemetry.Handler, limits config.SearchConfig) *Handler {
	return &Handler{
		svc:       svc,
		analytics: analytics,
		limits:    limits,
		logger:    slog.Default().With("component", "api-handler"),
	}
}

// ---------- Search ----------

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	opts, err := search.ParseOptions(r.URL.Query(), h.limits)
	if err != nil {
		h.fail(w, r, err, "invalid search parameters")
		return
	}
	ctx := search.WithOrigin(r.Context(), clientAddr(r))
	resp, err := h.svc.Search(ctx, opts)
	if err != nil {
		h.fail(w, r, err, "search failed")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ---------- Documents ----------

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []document.Document{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(docs),
		"documents": docs,
	})
}

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.createFromRequest(w, r, false)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.updateFromRequest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.deleteFromRequest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// Legacy routes keep the older {message, data} envelope and require the
// client to supply ids.

func (h *Handler) LegacyAdd(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.createFromRequest(w, r, true)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "document added", "data": doc})
}

func (h *Handler) LegacyUpdate(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.updateFromRequest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "document updated", "data": doc})
}

func (h *Handler) LegacyRemove(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.deleteFromRequest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("document %s removed", doc.ID)})
}

func (h *Handler) createFromRequest(w http.ResponseWriter, r *http.Request, requireID bool) (document.Document, bool) {
	var req DocumentRequest
	if !h.decode(w, r, &req) {
		return document.Document{}, false
	}
	if err := ValidateCreate(&req, requireID); err != nil {
		h.writeValidation(w, err)
		return document.Document{}, false
	}
	doc, err := h.svc.Create(r.Context(), req.Document())
	if err != nil {
		h.fail(w, r, err, "failed to create document")
		return document.Document{}, false
	}
	logger.FromContext(r.Context()).Info("document created", "doc_id", doc.ID)
	return doc, true
}

func (h *Handler) updateFromRequest(w http.ResponseWriter, r *http.Request) (document.Document, bool) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return document.Document{}, false
	}
	var req DocumentRequest
	if !h.decode(w, r, &req) {
		return document.Document{}, false
	}
	if err := ValidateUpdate(&req); err != nil {
		h.writeValidation(w, err)
		return document.Document{}, false
	}
	doc, err := h.svc.Update(r.Context(), id, req.Document())
	if err != nil {
		h.fail(w, r, err, "failed to update document")
		return document.Document{}, false
	}
	logger.FromContext(r.Context()).Info("document updated", "doc_id", id)
	return doc, true
}

func (h *Handler) deleteFromRequest(w http.ResponseWriter, r *http.Request) (document.Document, bool) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return document.Document{}, false
	}
	doc, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to delete document")
		return document.Document{}, false
	}
	logger.FromContext(r.Context()).Info("document deleted", "doc_id", id)
	return doc, true
}

// ---------- Replication ----------

// Replicate applies an intent sent by a peer. The origin header, when
// present, must agree with the intent body.
func (h *Handler) Replicate(w http.ResponseWriter, r *http.Request) {
	var intent replication.Intent
	if !h.decode(w, r, &intent) {
		return
	}
	if origin := r.Header.Get(replication.OriginHeader); origin != "" && origin != intent.OriginNodeID {
		h.writeError(w, http.StatusBadRequest, "origin header does not match intent")
		return
	}
	if err := h.svc.ApplyIntent(r.Context(), intent); err != nil {
		h.fail(w, r, err, "failed to apply intent")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "applied", "node_id": h.svc.NodeID()})
}

// ---------- Operator ----------

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to read stats")
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	h.analytics.Stats(w, r)
}

func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.InvalidateCache(r.Context()); err != nil {
		// The generation moved even if the backend flush failed.
		logger.FromContext(r.Context()).Warn("cache flush incomplete", "error", err)
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Resync(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Rebuild(r.Context())
	if err != nil {
		h.fail(w, r, err, "resync failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "rebuilt", "indexed": n})
}

// ---------- Helpers ----------

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// fail maps err to a status. Client errors echo their detail; everything
// else is logged and answered with a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(action, "error", err, "status_code", status)
		h.writeError(w, status, apperrors.PublicMessage(err))
		return
	}
	log.Debug(action, "error", err, "status_code", status)
	msg := apperrors.PublicMessage(err)
	if errors.Is(err, apperrors.ErrInvalidInput) {
		msg = err.Error()
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
