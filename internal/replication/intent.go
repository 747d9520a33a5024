// Package replication propagates local writes to the statically configured
// peers. Every intent is sent once per peer with a bounded timeout; failures
// are logged and counted, never retried, and leave that peer divergent until
// an operator resyncs it.
package replication

import (
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
)

// OriginHeader names the node that produced an intent.
const OriginHeader = "X-Origin-Node"

// Path is where peers accept intents.
const Path = "/internal/replicate"

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", apperrors.ErrInvalidInput, s)
	}
}

// Intent describes one committed mutation. Create and update carry the full
// resulting document so a peer can apply it without its own prior copy;
// delete carries only the id.
type Intent struct {
	Action       Action             `json:"action"`
	Document     *document.Document `json:"document,omitempty"`
	DocID        string             `json:"doc_id"`
	OriginNodeID string             `json:"origin_node_id"`
	Timestamp    time.Time          `json:"timestamp"`
}

// NewIntent builds an intent stamped with origin and the current time.
func NewIntent(action Action, doc *document.Document, docID, origin string) Intent {
	if doc != nil && docID == "" {
		docID = doc.ID
	}
	return Intent{
		Action:       action,
		Document:     doc,
		DocID:        docID,
		OriginNodeID: origin,
		Timestamp:    time.Now().UTC(),
	}
}

// Validate checks the intent is well formed.
func (i Intent) Validate() error {
	if _, err := ParseAction(string(i.Action)); err != nil {
		return err
	}
	if i.OriginNodeID == "" {
		return fmt.Errorf("%w: intent has no origin node", apperrors.ErrInvalidInput)
	}
	if i.DocID == "" {
		return fmt.Errorf("%w: intent has no document id", apperrors.ErrInvalidInput)
	}
	if i.Action != ActionDelete {
		if i.Document == nil {
			return fmt.Errorf("%w: %s intent has no document", apperrors.ErrInvalidInput, i.Action)
		}
		if i.Document.ID != i.DocID {
			return fmt.Errorf("%w: document id %q does not match intent id %q", apperrors.ErrInvalidInput, i.Document.ID, i.DocID)
		}
	}
	return nil
}

// Peer is one statically configured cluster member.
type Peer struct {
	ID   string
	Addr string
}

// PeersFromConfig converts configured peers, dropping any entry for selfID.
func PeersFromConfig(peers []config.PeerConfig, selfID string) []Peer {
	out := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p.ID == selfID {
			continue
		}
		out = append(out, Peer{ID: p.ID, Addr: strings.TrimRight(p.Addr, "/")})
	}
	return out
}

// State is the lifecycle of one intent toward one peer.
type State int

const (
	StateCreated State = iota
	StateSending
	StateDelivered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSending:
		return "sending"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of sending one intent to one peer.
type Outcome struct {
	PeerID   string
	Action   Action
	DocID    string
	State    State
	Err      error
	Duration time.Duration
}
