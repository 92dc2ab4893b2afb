// Package source defines positions and spans shared by every stage of the front end.
package source

import "fmt"

// Position is a location in a source file. Index counts characters from 0;
// Line and Column are 1-based.
type Position struct {
	Index  int `json:"index"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Start is the position of the first character of any file.
var Start = Position{Index: 0, Line: 1, Column: 1}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is a half-open range of a named source file.
type Span struct {
	File  string   `json:"file"`
	Start Position `json:"start"`
	End   Position `json:"end"`
}

func (s Span) String() string {
	return fmt.Sprintf("%s:%s", s.File, s.Start)
}

// Join returns the smallest span covering both s and other.
// Spans from different files keep s.
func (s Span) Join(other Span) Span {
	if s.File != other.File {
		return s
	}
	out := s
	if other.Start.Index < out.Start.Index {
		out.Start = other.Start
	}
	if other.End.Index > out.End.Index {
		out.End = other.End
	}
	return out
}

// File is a unit of source text.
type File struct {
	Name     string
	Contents string
}
