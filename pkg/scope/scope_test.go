package scope_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thomasrohde/morph/pkg/scope"
)

func TestInsertAndLookup(t *testing.T) {
	root := scope.NewRoot[int]()
	root.Insert("x", 1)
	child := root.Child(scope.NonRecursive)
	child.Insert("y", 2)

	for name, want := range map[string]int{"x": 1, "y": 2} {
		e, err := child.Lookup(context.Background(), scope.ByName(name))
		if err != nil {
			t.Fatalf("lookup %s: %v", name, err)
		}
		if e.Value != want {
			t.Errorf("%s = %d, want %d", name, e.Value, want)
		}
	}
	if _, ok := root.Get(scope.ByName("y")); ok {
		t.Error("parent sees a child's local")
	}
}

func TestShadowingKeepsIdentity(t *testing.T) {
	root := scope.NewRoot[string]()
	first := root.Insert("x", "first")
	second := root.Insert("x", "second")
	if first.ID == second.ID {
		t.Fatal("repeated inserts must allocate distinct identities")
	}

	e, _ := root.Get(scope.ByName("x"))
	if e.Value != "second" {
		t.Errorf("name lookup = %q, want second", e.Value)
	}
	e, _ = root.Get(scope.ByID(first))
	if e.Value != "first" {
		t.Errorf("identity lookup = %q, want first", e.Value)
	}
	if got := len(root.Locals()); got != 2 {
		t.Errorf("Locals() has %d entries, want 2", got)
	}
}

func TestSiblingIsolation(t *testing.T) {
	root := scope.NewRoot[int]()
	a := root.Child(scope.NonRecursive)
	b := root.Child(scope.NonRecursive)
	a.Insert("hidden", 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := b.Lookup(ctx, scope.ByName("hidden"))
	var nf *scope.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Error() != `"hidden" not found` {
		t.Errorf("message = %q", nf.Error())
	}
}

func TestRecursiveLookupWaitsForClose(t *testing.T) {
	root := scope.NewRoot[string]()
	group := root.Child(scope.Recursive)

	// f and g are compiled concurrently; each one needs the other's symbol.
	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)
	for i, pair := range [][2]string{{"f", "g"}, {"g", "f"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			group.Insert(pair[0], "body of "+pair[0])
			e, err := group.Lookup(context.Background(), scope.ByName(pair[1]))
			results[i], errs[i] = e.Value, err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	group.Close()
	wg.Wait()

	for i, want := range []string{"body of g", "body of f"} {
		if errs[i] != nil {
			t.Fatalf("lookup %d: %v", i, errs[i])
		}
		if results[i] != want {
			t.Errorf("result %d = %q, want %q", i, results[i], want)
		}
	}
	group.Release()
}

func TestRecursiveMissAfterCloseFallsThrough(t *testing.T) {
	root := scope.NewRoot[int]()
	root.Insert("outer", 7)
	group := root.Child(scope.Recursive)

	done := make(chan error, 1)
	go func() {
		_, err := group.Lookup(context.Background(), scope.ByName("missing"))
		done <- err
	}()
	select {
	case err := <-done:
		t.Fatalf("lookup returned before close: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	group.Close()
	if err := <-done; err == nil {
		t.Error("expected not found after close")
	}

	e, err := group.Lookup(context.Background(), scope.ByName("outer"))
	if err != nil || e.Value != 7 {
		t.Errorf("outer = %d, %v", e.Value, err)
	}
}

func TestGetDoesNotWait(t *testing.T) {
	root := scope.NewRoot[int]()
	root.Insert("x", 1)
	group := root.Child(scope.Recursive)
	defer group.Close()

	if e, ok := group.Get(scope.ByName("x")); !ok || e.Value != 1 {
		t.Errorf("Get through an open recursive scope = %d, %v", e.Value, ok)
	}
	if _, ok := group.Get(scope.ByName("nope")); ok {
		t.Error("expected miss")
	}
}

func TestLookupOwnedDoesNotWaitOnOwnScope(t *testing.T) {
	root := scope.NewRoot[int]()
	root.Insert("x", 1)
	group := root.Child(scope.Recursive)
	defer group.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := group.LookupOwned(ctx, scope.ByName("x"), []*scope.Scope[int]{group})
	if err != nil || e.Value != 1 {
		t.Fatalf("LookupOwned = %d, %v", e.Value, err)
	}
}

func TestAtMostHidesLaterShadows(t *testing.T) {
	root := scope.NewRoot[string]()
	root.Insert("x", "before")
	mark := scope.Mark()
	root.Insert("x", "after")
	root.Insert("y", "late")
	inner := root.Child(scope.NonRecursive)
	inner.Insert("z", "inner")

	for _, tc := range []struct {
		name string
		want string
		ok   bool
	}{
		{"x", "before", true},
		{"y", "", false},
		{"z", "inner", true},
	} {
		e, ok := inner.Get(scope.Lookup{Name: tc.name, AtMost: mark})
		if ok != tc.ok || e.Value != tc.want {
			t.Errorf("%s = %q, %v; want %q, %v", tc.name, e.Value, ok, tc.want, tc.ok)
		}
	}
	if e, _ := inner.Get(scope.ByName("x")); e.Value != "after" {
		t.Errorf("unlimited lookup = %q", e.Value)
	}
}

func TestLookupObservesContext(t *testing.T) {
	group := scope.NewRoot[int]().Child(scope.Recursive)
	defer group.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := group.Lookup(ctx, scope.ByName("x"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReleaseUnclosedRecursivePanics(t *testing.T) {
	group := scope.NewRoot[int]().Child(scope.Recursive)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	group.Release()
}

func TestNotFoundHint(t *testing.T) {
	root := scope.NewRoot[int]()
	root.Insert("fibonacci", 1)
	_, err := root.Lookup(context.Background(), scope.ByName("fibonaci"))
	var nf *scope.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Hint != `did you mean "fibonacci"?` {
		t.Errorf("hint = %q", nf.Hint)
	}
}

func TestTraceEvents(t *testing.T) {
	var mu sync.Mutex
	var events []string
	root := scope.NewRoot[int](scope.WithTrace(func(e scope.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Event)
	}))
	child := root.Child(scope.NonRecursive)
	child.Release()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"scope_open", "scope_open", "scope_close"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
}
