// Package std holds the morph sources every session starts from: the
// bootstrap grammar and the prelude.
package std

import (
	_ "embed"

	"github.com/thomasrohde/morph/pkg/source"
)

//go:embed syntax.morph
var syntaxSource string

//go:embed prelude.morph
var preludeSource string

// Syntax returns the bootstrap grammar, in the syntax declaration format
// read by parser.ReadSyntax.
func Syntax() source.File {
	return source.File{Name: "std/syntax.morph", Contents: syntaxSource}
}

// Prelude returns the program evaluated before user code.
func Prelude() source.File {
	return source.File{Name: "std/prelude.morph", Contents: preludeSource}
}
