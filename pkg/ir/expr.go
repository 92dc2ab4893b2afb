// Package ir defines the compiled form of morph programs: typed
// expressions, patterns and the values they evaluate to.
package ir

import (
	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/scope"
	"github.com/thomasrohde/morph/pkg/source"
	"github.com/thomasrohde/morph/pkg/types"
)

// Env is the environment that both compilation and evaluation run in.
// While compiling, names resolve to constants or BindingValues; while
// evaluating, bindings are inserted under their own symbols.
type Env = scope.Scope[Value]

// Binding is a variable declared by a pattern.
type Binding struct {
	Symbol scope.Symbol
	Type   types.Type
}

// NewBinding declares a fresh variable named name.
func NewBinding(name string, ty types.Type) *Binding {
	return &Binding{Symbol: scope.NewSymbol(name), Type: ty}
}

// Data is carried by every expression and pattern.
type Data struct {
	Type types.Type
	Span source.Span
}

// Expr is a compiled expression.
type Expr interface {
	Info() *Data
	exprNode()
}

type (
	UnitExpr struct{ Data }

	Constant struct {
		Data
		Value Value
	}

	// Number is a literal whose kind is decided by its inferred type.
	Number struct {
		Data
		Raw string
	}

	BindingExpr struct {
		Data
		Binding *Binding
	}

	// NativeExpr looks up a host function or constant by name.
	NativeExpr struct {
		Data
		Name Expr
	}

	// Let binds Pattern to Value. A Const let was already evaluated at
	// compile time and does nothing at runtime.
	Let struct {
		Data
		Pattern Pattern
		Value   Expr
		Const   bool
	}

	Call struct {
		Data
		F   Expr
		Arg Expr
	}

	Instantiate struct {
		Data
		Template Expr
		Arg      Expr
	}

	Then struct {
		Data
		List []Expr
	}

	If struct {
		Data
		Cond Expr
		Then Expr
		Else Expr
	}

	MatchBranch struct {
		Pattern Pattern
		Body    Expr
	}

	Match struct {
		Data
		Value    Expr
		Branches []MatchBranch
	}

	Is struct {
		Data
		Value   Expr
		Pattern Pattern
	}

	VariantExpr struct {
		Data
		Name  string
		Value Expr
	}

	Newtype struct {
		Data
		Def Expr
	}

	MakeMultiset struct {
		Data
		Values []Expr
	}

	// ScopeExpr evaluates Expr in a child environment.
	ScopeExpr struct {
		Data
		Expr Expr
	}

	// Recursive evaluates Body and collects the bindings it declares into a
	// tuple.
	Recursive struct {
		Data
		Body     Expr
		Bindings []*Binding
	}

	FunctionExpr struct {
		Data
		Fn  *FnSlot
		Sig types.Function
	}

	TemplateExpr struct {
		Data
		Fn *FnSlot
	}

	TupleExpr struct {
		Data
		Fields ast.Tuple[Expr]
	}

	FieldAccess struct {
		Data
		Obj   Expr
		Field string
	}

	FunctionType struct {
		Data
		Arg    Expr
		Result Expr
	}

	// AstExpr builds a syntax tree from quoted code.
	AstExpr struct {
		Data
		Definition *ast.SyntaxDefinition
		Values     ast.Tuple[Expr]
	}

	Use struct {
		Data
		Namespace Expr
	}

	Cast struct {
		Data
		Value  Expr
		Target Value
	}
)

func (e *UnitExpr) Info() *Data     { return &e.Data }
func (e *Constant) Info() *Data     { return &e.Data }
func (e *Number) Info() *Data       { return &e.Data }
func (e *BindingExpr) Info() *Data  { return &e.Data }
func (e *NativeExpr) Info() *Data   { return &e.Data }
func (e *Let) Info() *Data          { return &e.Data }
func (e *Call) Info() *Data         { return &e.Data }
func (e *Instantiate) Info() *Data  { return &e.Data }
func (e *Then) Info() *Data         { return &e.Data }
func (e *If) Info() *Data           { return &e.Data }
func (e *Match) Info() *Data        { return &e.Data }
func (e *Is) Info() *Data           { return &e.Data }
func (e *VariantExpr) Info() *Data  { return &e.Data }
func (e *Newtype) Info() *Data      { return &e.Data }
func (e *MakeMultiset) Info() *Data { return &e.Data }
func (e *ScopeExpr) Info() *Data    { return &e.Data }
func (e *Recursive) Info() *Data    { return &e.Data }
func (e *FunctionExpr) Info() *Data { return &e.Data }
func (e *TemplateExpr) Info() *Data { return &e.Data }
func (e *TupleExpr) Info() *Data    { return &e.Data }
func (e *FieldAccess) Info() *Data  { return &e.Data }
func (e *FunctionType) Info() *Data { return &e.Data }
func (e *AstExpr) Info() *Data      { return &e.Data }
func (e *Use) Info() *Data          { return &e.Data }
func (e *Cast) Info() *Data         { return &e.Data }

func (*UnitExpr) exprNode()     {}
func (*Constant) exprNode()     {}
func (*Number) exprNode()       {}
func (*BindingExpr) exprNode()  {}
func (*NativeExpr) exprNode()   {}
func (*Let) exprNode()          {}
func (*Call) exprNode()         {}
func (*Instantiate) exprNode()  {}
func (*Then) exprNode()         {}
func (*If) exprNode()           {}
func (*Match) exprNode()        {}
func (*Is) exprNode()           {}
func (*VariantExpr) exprNode()  {}
func (*Newtype) exprNode()      {}
func (*MakeMultiset) exprNode() {}
func (*ScopeExpr) exprNode()    {}
func (*Recursive) exprNode()    {}
func (*FunctionExpr) exprNode() {}
func (*TemplateExpr) exprNode() {}
func (*TupleExpr) exprNode()    {}
func (*FieldAccess) exprNode()  {}
func (*FunctionType) exprNode() {}
func (*AstExpr) exprNode()      {}
func (*Use) exprNode()          {}
func (*Cast) exprNode()         {}

// Pattern is a compiled pattern.
type Pattern interface {
	Info() *Data
	patternNode()
}

type (
	PlaceholderPattern struct{ Data }

	UnitPattern struct{ Data }

	BindingPattern struct {
		Data
		Binding *Binding
	}

	TuplePattern struct {
		Data
		Fields ast.Tuple[Pattern]
	}

	VariantPattern struct {
		Data
		Name  string
		Value Pattern
	}
)

func (p *PlaceholderPattern) Info() *Data { return &p.Data }
func (p *UnitPattern) Info() *Data        { return &p.Data }
func (p *BindingPattern) Info() *Data     { return &p.Data }
func (p *TuplePattern) Info() *Data       { return &p.Data }
func (p *VariantPattern) Info() *Data     { return &p.Data }

func (*PlaceholderPattern) patternNode() {}
func (*UnitPattern) patternNode()        {}
func (*BindingPattern) patternNode()     {}
func (*TuplePattern) patternNode()       {}
func (*VariantPattern) patternNode()     {}
