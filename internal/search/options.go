package search

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
)

// Options is the closed set of search parameters.
type Options struct {
	Query  string
	Fields []string
	Limit  int
	Fuzzy  int
	Mode   index.MatchMode
	Pre    string
	Post   string
}

var knownParams = []string{"q", "fields", "limit", "fuzzy", "mode", "pre", "post"}

// ParseOptions reads search parameters from a query string. Unknown keys,
// repeated keys and out-of-range values fail with ErrInvalidInput; omitted
// values take their defaults from limits.
func ParseOptions(values url.Values, limits config.SearchConfig) (Options, error) {
	opts := Options{
		Limit: limits.DefaultLimit,
		Pre:   limits.HighlightPre,
		Post:  limits.HighlightPost,
	}
	for key, vals := range values {
		if !slices.Contains(knownParams, key) {
			return Options{}, fmt.Errorf("%w: unknown parameter %q", apperrors.ErrInvalidInput, key)
		}
		if len(vals) > 1 {
			return Options{}, fmt.Errorf("%w: parameter %q given %d times", apperrors.ErrInvalidInput, key, len(vals))
		}
	}

	opts.Query = strings.TrimSpace(values.Get("q"))
	if raw := values.Get("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" && !slices.Contains(opts.Fields, f) {
				opts.Fields = append(opts.Fields, f)
			}
		}
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Options{}, fmt.Errorf("%w: limit must be a positive integer", apperrors.ErrInvalidInput)
		}
		opts.Limit = n
	}
	if limits.MaxResults > 0 && opts.Limit > limits.MaxResults {
		opts.Limit = limits.MaxResults
	}
	if raw := values.Get("fuzzy"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > limits.MaxFuzzy {
			return Options{}, fmt.Errorf("%w: fuzzy must be between 0 and %d", apperrors.ErrInvalidInput, limits.MaxFuzzy)
		}
		opts.Fuzzy = n
	}
	mode, err := index.ParseMatchMode(values.Get("mode"))
	if err != nil {
		return Options{}, err
	}
	opts.Mode = mode
	if _, ok := values["pre"]; ok {
		opts.Pre = values.Get("pre")
	}
	if _, ok := values["post"]; ok {
		opts.Post = values.Get("post")
	}
	return opts, nil
}
