package api

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
)

const (
	maxIDLength    = 255
	maxTitleLength = 1024
	maxFieldLength = 1 << 20
	maxFields      = 32
)

// DocumentRequest is the body of create and update calls. Title and content
// are shorthands for the two fields every document in this service carries;
// Fields may add others.
type DocumentRequest struct {
	ID      document.LooseID   `json:"id,omitempty"`
	Title   string             `json:"title"`
	Content string             `json:"content"`
	Fields  map[string]string  `json:"fields,omitempty"`
	Weights map[string]float64 `json:"weights,omitempty"`
}

// Document converts the request into a document. Explicit title and content
// win over the same keys in Fields.
func (r DocumentRequest) Document() document.Document {
	fields := make(map[string]string, len(r.Fields)+2)
	for k, v := range r.Fields {
		fields[k] = v
	}
	if r.Title != "" {
		fields["title"] = r.Title
	}
	if r.Content != "" {
		fields["content"] = r.Content
	}
	return document.Document{
		ID:      strings.TrimSpace(string(r.ID)),
		Fields:  fields,
		Weights: r.Weights,
	}
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateCreate checks a create body. requireID is set for the legacy
// route, which never assigned ids itself.
func ValidateCreate(req *DocumentRequest, requireID bool) error {
	errs := make(map[string]string)
	id := strings.TrimSpace(string(req.ID))
	if requireID && id == "" {
		errs["id"] = "id is required"
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Fields["title"]) == "" {
		errs["title"] = "title is required"
	}
	if requireID && strings.TrimSpace(req.Content) == "" {
		errs["content"] = "content is required"
	}
	checkCommon(req, errs)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateUpdate checks an update body. Every field is optional but at least
// one must carry text or a weight.
func ValidateUpdate(req *DocumentRequest) error {
	errs := make(map[string]string)
	doc := req.Document()
	empty := len(req.Weights) == 0
	for _, v := range doc.Fields {
		if strings.TrimSpace(v) != "" {
			empty = false
			break
		}
	}
	if empty {
		errs["body"] = "update must change at least one field"
	}
	if req.ID != "" {
		errs["id"] = "id is taken from the path"
	}
	checkCommon(req, errs)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkCommon(req *DocumentRequest, errs map[string]string) {
	if len(req.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if len(req.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if len(req.Content) > maxFieldLength {
		errs["content"] = fmt.Sprintf("content must be at most %d bytes", maxFieldLength)
	}
	if len(req.Fields) > maxFields {
		errs["fields"] = fmt.Sprintf("at most %d fields", maxFields)
	}
	for name, text := range req.Fields {
		if strings.TrimSpace(name) == "" {
			errs["fields"] = "field names must not be blank"
		} else if len(text) > maxFieldLength {
			errs["fields"] = fmt.Sprintf("field %q must be at most %d bytes", name, maxFieldLength)
		}
	}
	for name, w := range req.Weights {
		if w <= 0 {
			errs["weights"] = fmt.Sprintf("weight for %q must be positive", name)
		}
	}
}
