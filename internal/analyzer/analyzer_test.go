package analyzer

import (
	"errors"
	"reflect"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
)

func TestTokensWhole(t *testing.T) {
	a := New(WithDiacriticFolding(true))
	got := Collect(a.Tokens("Ma Trận là phim khoa học viễn tưởng"))
	want := []string{"ma", "tran", "la", "phim", "khoa", "hoc", "vien", "tuong"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestTokensWithoutFolding(t *testing.T) {
	a := New(WithDiacriticFolding(false))
	got := Collect(a.Tokens("Ma Trận"))
	want := []string{"ma", "trận"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestTokensStopWordsAndSeparators(t *testing.T) {
	a := New()
	got := Collect(a.Tokens("The quick-brown fox, and THE dog's 42nd bone"))
	want := []string{"quick", "brown", "fox", "dog", "s", "42nd", "bone"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestTokensCustomStopWords(t *testing.T) {
	a := New(WithStopWords("Phim"), WithDiacriticFolding(true))
	got := Collect(a.Tokens("phim hay"))
	if !reflect.DeepEqual(got, []string{"hay"}) {
		t.Errorf("Tokens() = %v", got)
	}
}

func TestTokensPrefix(t *testing.T) {
	a := New(WithMode(Prefix), WithDiacriticFolding(true))
	got := Collect(a.Tokens("Đức ok"))
	want := []string{"d", "du", "duc", "o", "ok"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
	query := Collect(a.QueryTokens("Đức ok"))
	if !reflect.DeepEqual(query, []string{"duc", "ok"}) {
		t.Errorf("QueryTokens() = %v", query)
	}
}

func TestTokensIsLazy(t *testing.T) {
	a := New()
	var got []string
	for tok := range a.Tokens("one two three four") {
		got = append(got, tok)
		if len(got) == 2 {
			break
		}
	}
	if !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Errorf("early break yielded %v", got)
	}
}

func TestEmptyText(t *testing.T) {
	a := New()
	if got := Collect(a.Tokens("  ,;  ")); len(got) != 0 {
		t.Errorf("Tokens() = %v, want none", got)
	}
}

func TestValidate(t *testing.T) {
	a := New()
	if err := a.Validate("hợp lệ"); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	err := a.Validate(string([]byte{0xff, 0xfe, 'a'}))
	if !errors.Is(err, apperrors.ErrAnalyzer) {
		t.Errorf("Validate(invalid) = %v, want ErrAnalyzer", err)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": Whole, "whole": Whole, "PREFIX": Prefix, "forward": Prefix} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("ngram"); err == nil {
		t.Error("ParseMode(ngram) should fail")
	}
}

func TestFold(t *testing.T) {
	tests := map[string]string{
		"viễn tưởng": "vien tuong",
		"Đà Nẵng":    "Da Nang",
		"café":       "cafe",
		"plain":      "plain",
	}
	for in, want := range tests {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func BenchmarkTokens(b *testing.B) {
	a := New(WithDiacriticFolding(true))
	text := "Ma Trận là phim khoa học viễn tưởng về một thế giới giả lập do máy móc tạo ra"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for range a.Tokens(text) {
		}
	}
}
