package lexer

import (
	"strings"
	"testing"
)

// helper to tokenize and fail on error
func mustTokenize(t *testing.T, src string) []Token {
	t.Helper()
	tokens, err := Tokenize(src, "test.morph")
	if err != nil {
		t.Fatalf("unexpected lex error: %v", err)
	}
	return tokens
}

// helper that strips the trailing EOF for easier assertions
func mustTokenizeNoEOF(t *testing.T, src string) []Token {
	t.Helper()
	tokens := mustTokenize(t, src)
	if len(tokens) == 0 {
		t.Fatal("expected at least one token (EOF)")
	}
	if tokens[len(tokens)-1].Kind != EOF {
		t.Fatal("last token is not EOF")
	}
	return tokens[:len(tokens)-1]
}

func raws(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Raw
	}
	return out
}

func TestEmptyInput(t *testing.T) {
	tokens := mustTokenize(t, "")
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token (EOF), got %d", len(tokens))
	}
	if tokens[0].Kind != EOF {
		t.Errorf("expected EOF, got %v", tokens[0].Kind)
	}
}

func TestTokenKinds(t *testing.T) {
	tests := []struct {
		src   string
		kind  Kind
		value string
	}{
		{"foo", Ident, "foo"},
		{"_", Ident, "_"},
		{"snake_case2", Ident, "snake_case2"},
		{"größe", Ident, "größe"},
		{`@"builtin macro let"`, Ident, "builtin macro let"},
		{`"hello"`, String, "hello"},
		{`'single'`, String, "single"},
		{`"esc\n\"q\""`, String, "esc\n\"q\""},
		{`"A"`, String, "A"},
		{"42", Number, "42"},
		{"1_000", Number, "1000"},
		{"3.25", Number, "3.25"},
		{"1e9", Number, "1e9"},
		{"# note", Comment, ""},
		{"+", Punctuation, ""},
		{"->", Punctuation, ""},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tokens := mustTokenizeNoEOF(t, tt.src)
			if len(tokens) != 1 {
				t.Fatalf("expected 1 token, got %d: %v", len(tokens), raws(tokens))
			}
			tok := tokens[0]
			if tok.Kind != tt.kind {
				t.Errorf("got kind %v, want %v", tok.Kind, tt.kind)
			}
			if tok.Raw != tt.src {
				t.Errorf("got raw %q, want %q", tok.Raw, tt.src)
			}
			if tt.value != "" && tok.Value != tt.value {
				t.Errorf("got value %q, want %q", tok.Value, tt.value)
			}
		})
	}
}

func TestRawIdentFlag(t *testing.T) {
	tokens := mustTokenizeNoEOF(t, `plain @"raw name"`)
	if tokens[0].IsRaw {
		t.Error("plain identifier marked raw")
	}
	if !tokens[1].IsRaw || tokens[1].Name() != "raw name" {
		t.Errorf("got %+v, want raw identifier named %q", tokens[1], "raw name")
	}
}

func TestPunctuationSplitting(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"a+b", []string{"a", "+", "b"}},
		{"x=-1", []string{"x", "=", "-", "1"}},
		{"a => b", []string{"a", "=>", "b"}},
		{"v :: int32", []string{"v", "::", "int32"}},
		{"f(x);", []string{"f", "(", "x", ")", ";"}},
		{"t.0", []string{"t", ".", "0"}},
		{"1.field", []string{"1", ".", "field"}},
		{".Some(x)", []string{".", "Some", "(", "x", ")"}},
		{"<- ->", []string{"<-", "->"}},
		{"a<=b", []string{"a", "<=", "b"}},
		{"$x", []string{"$", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := raws(mustTokenizeNoEOF(t, tt.src))
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpans(t *testing.T) {
	tokens := mustTokenizeNoEOF(t, "let x\n  = 1")
	want := []struct {
		line, col, index int
	}{
		{1, 1, 0},
		{1, 5, 4},
		{2, 3, 8},
		{2, 5, 10},
	}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(tokens))
	}
	for i, w := range want {
		start := tokens[i].Span.Start
		if start.Line != w.line || start.Column != w.col || start.Index != w.index {
			t.Errorf("token %d (%q): got %d:%d@%d, want %d:%d@%d",
				i, tokens[i].Raw, start.Line, start.Column, start.Index, w.line, w.col, w.index)
		}
		if tokens[i].Span.File != "test.morph" {
			t.Errorf("token %d: got file %q", i, tokens[i].Span.File)
		}
	}
}

func TestEOFPosition(t *testing.T) {
	tokens := mustTokenize(t, "ab\n")
	eof := tokens[len(tokens)-1]
	if eof.Span.Start.Line != 2 || eof.Span.Start.Column != 1 {
		t.Errorf("got EOF at %s, want 2:1", eof.Span.Start)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"unterminated string", `"abc`, "unterminated string literal"},
		{"bad escape", `"\q"`, "invalid escape character"},
		{"short unicode", `"\u12"`, "unicode escape"},
		{"unexpected char", "a ¤ b", "unexpected character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.src, "test.morph")
			if err == nil {
				t.Fatal("expected lex error")
			}
			lexErr, ok := err.(*LexError)
			if !ok {
				t.Fatalf("expected *LexError, got %T", err)
			}
			if lexErr.Diag.Code != "E_LEX" {
				t.Errorf("got code %q", lexErr.Diag.Code)
			}
			if !strings.Contains(lexErr.Diag.Message, tt.msg) {
				t.Errorf("got message %q, want it to contain %q", lexErr.Diag.Message, tt.msg)
			}
		})
	}
}
