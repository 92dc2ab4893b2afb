// Package diagnostics defines morph diagnostic types for lex, parse, compile and runtime errors.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/source"
)

// Diagnostic code constants.
const (
	ELex             = "E_LEX"
	EParse           = "E_PARSE"
	EGrammarConflict = "E_GRAMMAR_CONFLICT"
	EValidate        = "E_VALIDATE"
	ECompile         = "E_COMPILE"
	EMacroArgs       = "E_MACRO_ARGS"
	EMacroPending    = "E_MACRO_PENDING"
	EUnknownBuiltin  = "E_UNKNOWN_BUILTIN"
	ENotFound        = "E_NOT_FOUND"
	EType            = "E_TYPE"
	ERuntime         = "E_RUNTIME"
	EMatch           = "E_MATCH"
	ECast            = "E_CAST"
	EUnknownNative   = "E_UNKNOWN_NATIVE"
	ECapDenied       = "E_CAP_DENIED"
	EImport          = "E_IMPORT"
	EIO              = "E_IO"
	EBudget          = "E_BUDGET"
)

// Diagnostic represents a lex, parse, compile, or runtime diagnostic.
type Diagnostic struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Span    *source.Span `json:"span,omitempty"`
	Hint    string       `json:"hint,omitempty"`
}

// MakeDiag creates a new Diagnostic.
func MakeDiag(code, message string, span *source.Span, hint string) Diagnostic {
	return Diagnostic{
		Code:    code,
		Message: message,
		Span:    span,
		Hint:    hint,
	}
}

// Diagnoser is implemented by errors that know their diagnostic code.
type Diagnoser interface {
	Diagnostic() Diagnostic
}

// FromError converts an error chain into a diagnostic. The code, span and
// hint come from the innermost cause; the message keeps every layer of
// context added on the way out. A cause without a span takes the innermost
// span attached by a Locator.
func FromError(err error) Diagnostic {
	cause := errors.Cause(err)
	d := Diagnostic{Code: ECompile, Message: err.Error()}
	if dd, ok := cause.(Diagnoser); ok {
		inner := dd.Diagnostic()
		d.Code = inner.Code
		d.Span = inner.Span
		d.Hint = inner.Hint
		if err == cause {
			d.Message = inner.Message
		}
	}
	if d.Span == nil {
		d.Span = innermostSpan(err)
	}
	return d
}

// Locator is implemented by error wrappers that attach a source location to
// an error that has none.
type Locator interface {
	ErrorSpan() *source.Span
}

func innermostSpan(err error) *source.Span {
	var span *source.Span
	for e := err; e != nil; e = errors.Unwrap(e) {
		if l, ok := e.(Locator); ok && l.ErrorSpan() != nil {
			span = l.ErrorSpan()
		}
	}
	return span
}

// FormatDiagnostic formats a single diagnostic for display.
func FormatDiagnostic(d Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(d)
		return string(b)
	}
	loc := "<unknown>"
	if d.Span != nil {
		loc = fmt.Sprintf("%s:%d:%d", d.Span.File, d.Span.Start.Line, d.Span.Start.Column)
	}
	out := fmt.Sprintf("error[%s]: %s\n  --> %s", d.Code, d.Message, loc)
	if d.Hint != "" {
		out += fmt.Sprintf("\n  hint: %s", d.Hint)
	}
	return out
}

// FormatDiagnostics formats a slice of diagnostics for display.
func FormatDiagnostics(diags []Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(diags)
		return string(b)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = FormatDiagnostic(d, true)
	}
	return strings.Join(parts, "\n\n")
}
