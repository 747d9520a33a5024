package search

import (
	"errors"
	"net/url"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
)

var testLimits = config.SearchConfig{
	DefaultLimit:  10,
	MaxResults:    50,
	MaxFuzzy:      2,
	HighlightPre:  "<mark>",
	HighlightPost: "</mark>",
}

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := ParseOptions(url.Values{"q": {"  matrix  "}}, testLimits)
	if err != nil {
		t.Fatalf("ParseOptions() error: %v", err)
	}
	if opts.Query != "matrix" || opts.Limit != 10 || opts.Fuzzy != 0 || opts.Mode != index.MatchAnd {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Pre != "<mark>" || opts.Post != "</mark>" {
		t.Errorf("highlight markers = %q %q", opts.Pre, opts.Post)
	}
}

func TestParseOptionsExplicit(t *testing.T) {
	values := url.Values{
		"q":      {"ma tran"},
		"fields": {"title, content,title"},
		"limit":  {"500"},
		"fuzzy":  {"2"},
		"mode":   {"or"},
		"pre":    {"["},
		"post":   {""},
	}
	opts, err := ParseOptions(values, testLimits)
	if err != nil {
		t.Fatalf("ParseOptions() error: %v", err)
	}
	if len(opts.Fields) != 2 || opts.Fields[0] != "title" || opts.Fields[1] != "content" {
		t.Errorf("Fields = %v", opts.Fields)
	}
	if opts.Limit != 50 {
		t.Errorf("Limit = %d, want clamp to 50", opts.Limit)
	}
	if opts.Fuzzy != 2 || opts.Mode != index.MatchOr {
		t.Errorf("Fuzzy=%d Mode=%v", opts.Fuzzy, opts.Mode)
	}
	if opts.Pre != "[" || opts.Post != "" {
		t.Errorf("explicit empty post not kept: %q %q", opts.Pre, opts.Post)
	}
}

func TestParseOptionsRejects(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
	}{
		{"unknown key", url.Values{"q": {"x"}, "sort": {"date"}}},
		{"repeated key", url.Values{"q": {"x", "y"}}},
		{"zero limit", url.Values{"limit": {"0"}}},
		{"text limit", url.Values{"limit": {"ten"}}},
		{"negative fuzzy", url.Values{"fuzzy": {"-1"}}},
		{"fuzzy above max", url.Values{"fuzzy": {"3"}}},
		{"bad mode", url.Values{"mode": {"xor"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseOptions(tt.values, testLimits); !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("ParseOptions() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}
