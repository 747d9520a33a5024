package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/replication"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/middleware"
)

// RouterConfig carries the optional collaborators of the middleware chain.
// A nil Limiter disables rate limiting; a zero Timeout disables the
// per-request deadline.
type RouterConfig struct {
	Health  *health.Checker
	Metrics *metrics.Metrics
	Limiter middleware.Allower
	Timeout time.Duration
	CORS    middleware.CORSConfig
}

// NewRouter builds the node's HTTP handler.
//
// Route table:
//
//	GET    /search                   search (closed parameter set)
//	GET    /api/documents            list documents
//	POST   /api/documents            create
//	PUT    /api/documents/{id}       partial update
//	DELETE /api/documents/{id}       delete
//	POST   /internal/replicate       apply a peer's intent
//	GET    /api/stats                node counters
//	GET    /api/analytics            query telemetry aggregate
//	POST   /api/cache/invalidate     flush the result cache
//	POST   /api/admin/resync         rebuild the index from the store
//	GET    /health/live, /health/ready
//
// Older clients are served by GET /docs, POST /api/add,
// PUT /api/update/{id} and DELETE /api/remove/{id}.
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → RateLimit → Timeout → mux
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Health != nil {
		mux.HandleFunc("GET /health/live", cfg.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Health.ReadyHandler())
		mux.HandleFunc("GET /health", cfg.Health.ReadyHandler())
	}

	mux.HandleFunc("GET /search", h.Search)

	mux.HandleFunc("GET /api/documents", h.ListDocuments)
	mux.HandleFunc("POST /api/documents", h.CreateDocument)
	mux.HandleFunc("PUT /api/documents/{id}", h.UpdateDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", h.DeleteDocument)

	mux.HandleFunc("GET /docs", h.ListDocuments)
	mux.HandleFunc("POST /api/add", h.LegacyAdd)
	mux.HandleFunc("PUT /api/update/{id}", h.LegacyUpdate)
	mux.HandleFunc("DELETE /api/remove/{id}", h.LegacyRemove)

	mux.HandleFunc("POST "+replication.Path, h.Replicate)

	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/analytics", h.Analytics)
	mux.HandleFunc("POST /api/cache/invalidate", h.InvalidateCache)
	mux.HandleFunc("POST /api/admin/resync", h.Resync)

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.CORS(cfg.CORS),
	}
	if cfg.Metrics != nil {
		mws = append(mws, middleware.Metrics(cfg.Metrics))
	}
	if cfg.Limiter != nil {
		mws = append(mws, middleware.RateLimit(cfg.Limiter))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.Timeout))
	}
	return middleware.Chain(mux, mws...)
}
