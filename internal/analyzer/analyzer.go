// Package analyzer turns field text into normalized tokens. It lower-cases
// input, optionally folds diacritics, splits on non-alphanumeric boundaries,
// drops stop-words and, in prefix mode, expands every word into its prefixes
// so typeahead matches are resolved at index time.
package analyzer

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Mode selects how words become tokens.
type Mode int

const (
	// Whole emits each word once.
	Whole Mode = iota
	// Prefix emits every prefix of each word, the word itself included.
	Prefix
)

func (m Mode) String() string {
	switch m {
	case Prefix:
		return "prefix"
	default:
		return "whole"
	}
}

// ParseMode maps a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "whole":
		return Whole, nil
	case "prefix", "forward":
		return Prefix, nil
	default:
		return Whole, fmt.Errorf("%w: unknown tokenize mode %q", apperrors.ErrInvalidInput, s)
	}
}

var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"has", "he", "in", "is", "it", "its", "of", "on", "or", "that",
	"the", "to", "was", "were", "will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where", "who", "which", "their",
	"và", "của", "các", "những", "được", "cho", "với", "thì",
}

// Analyzer is immutable after construction and safe for concurrent use.
type Analyzer struct {
	mode      Mode
	fold      bool
	stopWords map[string]struct{}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMode sets the index-time tokenize mode.
func WithMode(mode Mode) Option {
	return func(a *Analyzer) {
		a.mode = mode
	}
}

// WithStopWords replaces the default stop-word set.
func WithStopWords(words ...string) Option {
	return func(a *Analyzer) {
		a.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = strings.TrimSpace(w); w != "" {
				a.stopWords[w] = struct{}{}
			}
		}
	}
}

// WithDiacriticFolding strips combining marks so "Trận" and "tran" share a token.
func WithDiacriticFolding(enable bool) Option {
	return func(a *Analyzer) {
		a.fold = enable
	}
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{mode: Whole}
	WithStopWords(defaultStopWords...)(a)
	for _, opt := range opts {
		opt(a)
	}
	// Stop-words go through the same normalization as the text they filter.
	normalized := make(map[string]struct{}, len(a.stopWords))
	for w := range a.stopWords {
		normalized[a.Normalize(w)] = struct{}{}
	}
	a.stopWords = normalized
	return a
}

func (a *Analyzer) Mode() Mode {
	return a.mode
}

// Validate rejects text the analyzer cannot process.
func (a *Analyzer) Validate(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", apperrors.ErrAnalyzer)
	}
	return nil
}

// Normalize lower-cases text and, when folding is on, removes diacritics.
func (a *Analyzer) Normalize(text string) string {
	text = strings.ToLower(text)
	if !a.fold {
		return text
	}
	return Fold(text)
}

// Tokens yields tokens for index-time analysis using the configured mode.
func (a *Analyzer) Tokens(text string) iter.Seq[string] {
	return a.TokensMode(text, a.mode)
}

// QueryTokens yields whole-word tokens; prefix expansion only happens when
// documents are indexed.
func (a *Analyzer) QueryTokens(text string) iter.Seq[string] {
	return a.TokensMode(text, Whole)
}

// TokensMode yields tokens lazily in text order. Stop-words are skipped.
func (a *Analyzer) TokensMode(text string, mode Mode) iter.Seq[string] {
	return func(yield func(string) bool) {
		normalized := a.Normalize(text)
		start := -1
		emit := func(word string) bool {
			if _, stop := a.stopWords[word]; stop {
				return true
			}
			if mode == Whole {
				return yield(word)
			}
			for i := range word {
				if i == 0 {
					continue
				}
				if !yield(word[:i]) {
					return false
				}
			}
			return yield(word)
		}
		for i, r := range normalized {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !emit(normalized[start:i]) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			emit(normalized[start:])
		}
	}
}

// Collect drains a token sequence into a slice.
func Collect(seq iter.Seq[string]) []string {
	var out []string
	for tok := range seq {
		out = append(out, tok)
	}
	return out
}

// Fold removes combining marks and maps letters that carry a stroke rather
// than a combining mark (đ, ø, ł) to their base letter.
func Fold(s string) string {
	// transform.Chain keeps buffers, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Map(foldRune), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func foldRune(r rune) rune {
	switch r {
	case 'đ':
		return 'd'
	case 'Đ':
		return 'D'
	case 'ø':
		return 'o'
	case 'Ø':
		return 'O'
	case 'ł':
		return 'l'
	case 'Ł':
		return 'L'
	default:
		return r
	}
}
