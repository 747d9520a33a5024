package search

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/analyzer"
)

// Highlight wraps every word of text whose normalized form matches one of
// terms in pre and post. Matching happens on normalized text, so an
// unaccented term still marks the accented original. With a prefix-mode
// analyzer a term may cover only the start of a word; only that part is
// wrapped.
func Highlight(a *analyzer.Analyzer, text string, terms []string, pre, post string) (string, bool) {
	if len(terms) == 0 || text == "" {
		return text, false
	}
	termSet := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		termSet[t] = struct{}{}
	}
	prefix := a.Mode() == analyzer.Prefix

	var out strings.Builder
	out.Grow(len(text) + 16)
	matched := false
	last := 0
	for _, w := range words(a, text) {
		end, ok := w.match(termSet, prefix)
		if !ok {
			continue
		}
		matched = true
		out.WriteString(text[last:w.start])
		out.WriteString(pre)
		out.WriteString(text[w.start:end])
		out.WriteString(post)
		last = end
	}
	if !matched {
		return text, false
	}
	out.WriteString(text[last:])
	return out.String(), true
}

// word is one run of letters and digits in the original text, with its
// normalized form. ends[i] is the original byte offset that closes the
// normalized prefix of length i+1 bytes, or -1 inside a multi-byte rune.
type word struct {
	start int
	norm  string
	ends  []int
}

func (w word) match(terms map[string]struct{}, prefix bool) (int, bool) {
	if _, ok := terms[w.norm]; ok {
		return w.ends[len(w.ends)-1], true
	}
	if !prefix {
		return 0, false
	}
	for n := len(w.norm) - 1; n > 0; n-- {
		if w.ends[n-1] < 0 {
			continue
		}
		if _, ok := terms[w.norm[:n]]; ok {
			return w.ends[n-1], true
		}
	}
	return 0, false
}

func words(a *analyzer.Analyzer, text string) []word {
	var out []word
	var cur *word
	flush := func() {
		if cur != nil && cur.norm != "" {
			out = append(out, *cur)
		}
		cur = nil
	}
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		start, end := i, i+size
		i = end
		var norm string
		if r < utf8.RuneSelf {
			norm = string(unicode.ToLower(r))
		} else {
			norm = a.Normalize(string(r))
		}
		if norm == "" && unicode.Is(unicode.Mn, r) && cur != nil {
			// Combining mark folded away: extend the current word.
			cur.ends[len(cur.ends)-1] = end
			continue
		}
		if !isWordText(norm) {
			flush()
			continue
		}
		if cur == nil {
			cur = &word{start: start}
		}
		cur.norm += norm
		for j := 0; j < len(norm)-1; j++ {
			cur.ends = append(cur.ends, -1)
		}
		cur.ends = append(cur.ends, end)
	}
	flush()
	return out
}

func isWordText(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
