package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Transport delivers an intent to one peer.
type Transport interface {
	Send(ctx context.Context, peer Peer, intent Intent) error
}

// HTTPTransport POSTs intents as JSON to <addr>/internal/replicate.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport uses client, or a default client when nil. Per-attempt
// deadlines come from the context, not the client.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Send(ctx context.Context, peer Peer, intent Intent) error {
	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encoding intent: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer.Addr+Path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", peer.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OriginHeader, intent.OriginNodeID)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", peer.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("peer %s answered %d: %s", peer.ID, resp.StatusCode, bytes.TrimSpace(msg))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
