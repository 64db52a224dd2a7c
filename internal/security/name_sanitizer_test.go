package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// TestSanitize_StripsMarkup はタグとスクリプトが除去されることを検証する。
func TestSanitize_StripsMarkup(t *testing.T) {
	sanitizer := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Ann", "Ann"},
		{"タグは除去される", "<b>Ann</b>", "Ann"},
		{"scriptは中身ごと除去される", "Ann<script>alert(1)</script>", "Ann"},
		{"on*属性を持つ要素も除去される", `<img src=x onerror=alert(1)>Lee`, "Lee"},
		{"アポストロフィは保持される", "O'Brien", "O'Brien"},
		{"アンパサンドは保持される", "Smith & Sons", "Smith & Sons"},
		{"連続する空白は1つにまとめる", "  Mary \t  Jane  ", "Mary Jane"},
		{"日本語", "山田 太郎", "山田 太郎"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	sanitizer := NewNameSanitizer()
	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}

func TestSanitize_OnlyMarkupBecomesEmpty(t *testing.T) {
	sanitizer := NewNameSanitizer()
	if got := sanitizer.Sanitize("<script>x</script>"); got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}

func TestSanitize_TruncatesLongNames(t *testing.T) {
	sanitizer := NewNameSanitizer()
	got := sanitizer.Sanitize(strings.Repeat("あ", MaxNameLength+20))
	if n := utf8.RuneCountInString(got); n != MaxNameLength {
		t.Errorf("rune count = %d, want %d", n, MaxNameLength)
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewNameSanitizer()
	inputs := []string{"<i>Ann</i>", "O'Brien", "a &amp; b"}

	for _, input := range inputs {
		first := sanitizer.Sanitize(input)
		second := sanitizer.Sanitize(first)
		if first != second {
			t.Errorf("Sanitize is not idempotent for %q: %q -> %q", input, first, second)
		}
	}
}

func TestNameSanitizerInterface(t *testing.T) {
	var _ NameSanitizer = NewNameSanitizer()
}
