package ast_test

import (
	"strconv"
	"testing"

	"github.com/thomasrohde/morph/pkg/ast"
)

func TestTupleOrder(t *testing.T) {
	tup := ast.NewTuple[int]()
	tup.Add("", 1)
	tup.Add("z", 26)
	tup.Add("", 2)
	tup.Add("a", 0)

	var names []string
	var values []int
	for name, v := range tup.All() {
		names = append(names, name)
		values = append(values, v)
	}
	wantNames := []string{"", "", "a", "z"}
	wantValues := []int{1, 2, 0, 26}
	for i := range wantNames {
		if names[i] != wantNames[i] || values[i] != wantValues[i] {
			t.Fatalf("field %d = (%q, %d), want (%q, %d)", i, names[i], values[i], wantNames[i], wantValues[i])
		}
	}
	if tup.Len() != 4 {
		t.Errorf("Len() = %d, want 4", tup.Len())
	}
}

func TestIntoNamed(t *testing.T) {
	tup := ast.NewTuple[string]()
	tup.Add("name", "x")
	tup.Add("value", "1")

	fields, err := tup.IntoNamed("value", "name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fields[0] != "1" || fields[1] != "x" {
		t.Errorf("fields = %v", fields)
	}

	if _, err := tup.IntoNamed("name"); err == nil {
		t.Error("expected error for unexpected field")
	}
	if _, err := tup.IntoNamed("name", "value", "type"); err == nil {
		t.Error("expected error for missing field")
	}
}

func TestIntoNamedOpt(t *testing.T) {
	tup := ast.SingleNamed("cond", "c")
	tup.Add("then_case", "a")

	req, opt, err := tup.IntoNamedOpt([]string{"cond", "then_case"}, []string{"else_case"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req[0] != "c" || req[1] != "a" {
		t.Errorf("required = %v", req)
	}
	if opt[0].OK {
		t.Error("else_case should be absent")
	}

	tup.Add("", "extra")
	if _, _, err := tup.IntoNamedOpt([]string{"cond", "then_case"}, []string{"else_case"}); err == nil {
		t.Error("expected error for unnamed field")
	}
}

func TestZip(t *testing.T) {
	a := ast.NewTuple[int]()
	a.Add("", 1)
	a.Add("x", 2)
	b := ast.NewTuple[string]()
	b.Add("", "one")
	b.Add("x", "two")

	pairs, err := ast.Zip(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 2 || pairs[1].Name != "x" || pairs[1].Left != 2 || pairs[1].Right != "two" {
		t.Errorf("pairs = %+v", pairs)
	}

	b.Add("y", "three")
	if _, err := ast.Zip(a, b); err == nil {
		t.Error("expected error for mismatched names")
	}
}

func TestMapAndFormat(t *testing.T) {
	tup := ast.NewTuple[int]()
	tup.Add("", 7)
	tup.Add("b", 3)
	strs := ast.MapTuple(tup, strconv.Itoa)
	if got := ast.FormatTuple(strs, func(s string) string { return s }); got != "(7, b: 3)" {
		t.Errorf("FormatTuple = %q", got)
	}
}
