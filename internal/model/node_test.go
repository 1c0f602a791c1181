package model

import (
	"errors"
	"testing"
)

func buildTree(t *testing.T) *Tree {
	t.Helper()
	tree := NewTree()

	if _, err := tree.AddFolder("", "unit"); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.AddVariable("unit", "level", float64(0), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.AddMethod("unit", "start", func(args []any, kwargs map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}); err != nil {
		t.Fatal(err)
	}

	return tree
}

func TestTree_Resolve(t *testing.T) {
	tree := buildTree(t)

	v, err := tree.ResolveVariable("unit/level")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Path() != "unit/level" {
		t.Errorf("expected path unit/level, got %s", v.Path())
	}

	if _, err := tree.Resolve("unit/missing"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}

	// Метод не является переменной.
	if _, err := tree.ResolveVariable("unit/start"); !errors.Is(err, ErrWrongNodeType) {
		t.Errorf("expected ErrWrongNodeType, got %v", err)
	}
	if _, err := tree.ResolveMethod("unit/level"); !errors.Is(err, ErrWrongNodeType) {
		t.Errorf("expected ErrWrongNodeType, got %v", err)
	}
}

func TestTree_DuplicateChild(t *testing.T) {
	tree := buildTree(t)

	if _, err := tree.AddVariable("unit", "level", float64(1), nil); !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("expected ErrDuplicateNode, got %v", err)
	}
}

func TestVariable_ValidatorRejectsWrite(t *testing.T) {
	tree := NewTree()
	nonNegative := func(value any) bool {
		n, ok := value.(float64)
		return ok && n >= 0
	}
	v, err := tree.AddVariable("", "speed", float64(1), nonNegative)
	if err != nil {
		t.Fatal(err)
	}

	if !v.Write(float64(5)) {
		t.Error("valid write rejected")
	}
	if v.Write(float64(-1)) {
		t.Error("invalid write accepted")
	}
	if v.Read() != float64(5) {
		t.Errorf("rejected write must not change the value, got %v", v.Read())
	}
}

func TestVariable_SubscribeIdempotent(t *testing.T) {
	tree := buildTree(t)
	v, _ := tree.ResolveVariable("unit/level")

	v.Subscribe("s-1")
	v.Subscribe("s-1")
	v.Subscribe("s-2")

	if len(v.Subscribers()) != 2 {
		t.Errorf("expected 2 subscribers, got %v", v.Subscribers())
	}
	if !v.IsSubscribed("s-1") {
		t.Error("s-1 should be subscribed")
	}

	v.Unsubscribe("s-1")
	if v.IsSubscribed("s-1") {
		t.Error("s-1 should be unsubscribed")
	}
	// Повторная отписка безвредна.
	v.Unsubscribe("s-1")
	if len(v.Subscribers()) != 1 {
		t.Errorf("expected 1 subscriber, got %v", v.Subscribers())
	}
}

func TestVariable_WriteNotifiesEverySubscriber(t *testing.T) {
	tree := buildTree(t)
	v, _ := tree.ResolveVariable("unit/level")

	var notified []string
	tree.SetObserver(func(subscriberID string, nv *Variable, value any) {
		if nv != v {
			t.Errorf("observer got wrong variable %s", nv.Path())
		}
		if value != float64(7) {
			t.Errorf("observer got wrong value %v", value)
		}
		notified = append(notified, subscriberID)
	})

	v.Subscribe("s-1")
	v.Subscribe("s-2")
	v.Write(float64(7))

	if len(notified) != 2 {
		t.Fatalf("expected 2 notifications, got %v", notified)
	}
}

func TestVariable_RejectedWriteDoesNotNotify(t *testing.T) {
	tree := NewTree()
	never := func(any) bool { return false }
	v, err := tree.AddVariable("", "locked", float64(0), never)
	if err != nil {
		t.Fatal(err)
	}

	called := false
	tree.SetObserver(func(string, *Variable, any) { called = true })

	v.Subscribe("s-1")
	if v.Write(float64(1)) {
		t.Error("write should be rejected")
	}
	if called {
		t.Error("rejected write must not notify subscribers")
	}
}

func TestFolder_ChildrenOrdered(t *testing.T) {
	tree := NewTree()
	f, err := tree.AddFolder("", "plant")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b", "a", "c"} {
		if _, err := tree.AddVariable("plant", name, 0, nil); err != nil {
			t.Fatal(err)
		}
	}

	children := f.Children()
	if len(children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(children))
	}
	// Порядок добавления сохраняется.
	got := []string{children[0].Name(), children[1].Name(), children[2].Name()}
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("children order %v, expected %v", got, want)
			break
		}
	}
}
