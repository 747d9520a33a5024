package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/replication"
)

// lateHandler lets a test server start before its routes exist, so every
// node can learn every other node's address.
type lateHandler struct {
	h atomic.Pointer[http.Handler]
}

func (l *lateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*l.h.Load()).ServeHTTP(w, r)
}

// TestHTTPClusterDivergence writes on node a while node c never answers its
// replication endpoint in time: a and b converge, c stays behind.
func TestHTTPClusterDivergence(t *testing.T) {
	ids := []string{"a", "b", "c"}
	late := make(map[string]*lateHandler)
	var peers []replication.Peer
	for _, id := range ids {
		late[id] = &lateHandler{}
		srv := httptest.NewServer(late[id])
		t.Cleanup(srv.Close)
		peers = append(peers, replication.Peer{ID: id, Addr: srv.URL})
	}

	outcomes := make(chan replication.Outcome, 8)
	urls := make(map[string]string)
	for _, p := range peers {
		urls[p.ID] = p.Addr
		rep := replication.New(p.ID, peers, replication.NewHTTPTransport(nil),
			replication.WithTimeout(200*time.Millisecond),
			replication.WithOutcomeHook(func(o replication.Outcome) { outcomes <- o }),
		)
		disp := replication.NewDispatcher(rep, 2, 8, nil)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			disp.Close(ctx)
		})
		var h http.Handler = NewRouter(NewHandler(newService(p.ID, disp, rep), nil, testLimits), RouterConfig{})
		if p.ID == "c" {
			routes := h
			h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == replication.Path {
					<-r.Context().Done()
					return
				}
				routes.ServeHTTP(w, r)
			})
		}
		late[p.ID].h.Store(&h)
	}

	status, _ := do(t, http.MethodPost, urls["a"]+"/api/documents", map[string]any{"id": "d1", "title": "Ma Trận"})
	if status != http.StatusCreated {
		t.Fatalf("create on a = %d", status)
	}

	got := make(map[string]replication.Outcome)
	deadline := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case o := <-outcomes:
			got[o.PeerID] = o
		case <-deadline:
			t.Fatalf("only %d outcomes arrived", len(got))
		}
	}
	if got["b"].State != replication.StateDelivered || got["c"].State != replication.StateFailed {
		t.Errorf("outcomes b=%v c=%v", got["b"].State, got["c"].State)
	}

	for id, want := range map[string]float64{"a": 1, "b": 1, "c": 0} {
		_, body := do(t, http.MethodGet, urls[id]+"/search?q=ma+tran", nil)
		if body["total"] != want {
			t.Errorf("node %s: total = %v, want %v", id, body["total"], want)
		}
	}
}
