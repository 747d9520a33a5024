package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

// Query is everything that shapes a result set. Tokens should already be
// normalized by the analyzer; order and duplicates do not matter.
type Query struct {
	Tokens []string
	Fields []string
	Limit  int
	Fuzzy  int
	Mode   string
	Pre    string
	Post   string
}

// Fingerprint returns a canonical key for q. Queries that differ only in
// token order, duplicate tokens, or field order share a fingerprint.
func Fingerprint(q Query) string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(strings.Join(canonical(q.Tokens), "\x1f"))
	b.WriteString("|f=")
	b.WriteString(strings.Join(canonical(q.Fields), "\x1f"))
	b.WriteString("|l=")
	b.WriteString(strconv.Itoa(q.Limit))
	b.WriteString("|z=")
	b.WriteString(strconv.Itoa(q.Fuzzy))
	b.WriteString("|m=")
	b.WriteString(q.Mode)
	b.WriteString("|h=")
	b.WriteString(q.Pre)
	b.WriteString("\x1f")
	b.WriteString(q.Post)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

func canonical(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
