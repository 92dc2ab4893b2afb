package lexer

import (
	"testing"
)

// FuzzTokenize feeds random inputs to the lexer to catch panics.
// The lexer should never panic; it returns an error for invalid input.
func FuzzTokenize(f *testing.F) {
	seeds := []string{
		`syntax add <- 30 = a "+" b`,
		`let x = 1 + 2 * 3; x`,
		`@"builtin macro then"`,
		`"hello" 'single' "with\nescape"`,
		`42 3.14 1e10 1_000`,
		`+ - * / % > < >= <= == != -> <- => ::`,
		`( ) [ ] { } , ; .`,
		`# comment`,
		``,
		"\t\n\r",
		`"unterminated`,
		`@`,
		`@"`,
		`"\u"`,
		"\xff\xfe",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		tokens, err := Tokenize(input, "fuzz.morph")
		if err != nil {
			return
		}
		if len(tokens) == 0 || tokens[len(tokens)-1].Kind != EOF {
			t.Fatalf("token stream for %q does not end with EOF", input)
		}
	})
}
