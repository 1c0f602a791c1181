package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/shaiso/Machina/internal/model"
	"github.com/shaiso/Machina/internal/trace"
	"github.com/shaiso/Machina/internal/wire"
)

// testRuntime собирает Runtime с детерминированными id.
func testRuntime(t *testing.T, tree *model.Tree) *Runtime {
	t.Helper()
	return &Runtime{
		Machine: "m-local",
		Tree:    tree,
		IDs:     &SequenceIDs{Prefix: "id"},
		Sink:    trace.NopSink{},
	}
}

// plantTree — модель с уровнем, клапаном и методом сброса.
func plantTree(t *testing.T) *model.Tree {
	t.Helper()
	tree := model.NewTree()

	if _, err := tree.AddFolder("", "plant"); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.AddVariable("plant", "level", float64(0), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.AddVariable("plant", "valve", false, nil); err != nil {
		t.Fatal(err)
	}
	reset := func(args []any, kwargs map[string]any) (map[string]any, error) {
		v, err := tree.ResolveVariable("plant/level")
		if err != nil {
			return nil, err
		}
		v.Write(float64(0))
		return map[string]any{"reset_done": true}, nil
	}
	if _, err := tree.AddMethod("plant", "reset", reset); err != nil {
		t.Fatal(err)
	}

	return tree
}

func TestCompositeMethod_LocalOnlyCompletesInOneRun(t *testing.T) {
	tree := plantTree(t)
	rt := testRuntime(t, tree)

	graph := NewGraph(
		NewWriteVariable("plant/level", "$target"),
		NewReadVariable("plant/level", "observed"),
		NewCallMethod("plant/reset", nil, nil),
	)
	m := NewCompositeMethod("m1", "plant/cycle",
		[]ParamSpec{{Name: "target", Default: float64(10)}},
		[]string{"observed", "reset_done"},
		graph, rt)

	inv, err := m.Start(context.Background(), map[string]any{"target": float64(42)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Граф без приостановок выполняется за один прогон.
	if !inv.Done {
		t.Fatal("invocation should be done")
	}
	if inv.Returns["observed"] != float64(42) {
		t.Errorf("expected observed=42, got %v", inv.Returns["observed"])
	}
	if inv.Returns["reset_done"] != true {
		t.Errorf("expected reset_done=true, got %v", inv.Returns["reset_done"])
	}
	if m.ActiveContexts() != 0 {
		t.Errorf("completed scope should be deleted, %d left", m.ActiveContexts())
	}
}

func TestCompositeMethod_DefaultsAndOverrides(t *testing.T) {
	tree := plantTree(t)
	rt := testRuntime(t, tree)

	graph := NewGraph(NewWriteVariable("plant/level", "$target"))
	m := NewCompositeMethod("m1", "plant/set",
		[]ParamSpec{{Name: "target", Default: float64(5)}},
		nil, graph, rt)

	// Без аргументов действует default.
	if _, err := m.Start(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	level, _ := tree.ResolveVariable("plant/level")
	if level.Read() != float64(5) {
		t.Errorf("expected level=5 from default, got %v", level.Read())
	}

	// Переданный kwarg перекрывает default.
	if _, err := m.Start(context.Background(), map[string]any{"target": float64(9)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level.Read() != float64(9) {
		t.Errorf("expected level=9 from kwarg, got %v", level.Read())
	}
}

func TestCompositeMethod_WaitConditionSuspendAndResume(t *testing.T) {
	tree := plantTree(t)
	rt := testRuntime(t, tree)

	graph := NewGraph(
		NewWriteVariable("plant/valve", true),
		NewWaitCondition("plant/level", OpGE, "$target"),
		NewWriteVariable("plant/valve", false),
	)
	m := NewCompositeMethod("m1", "plant/fill",
		[]ParamSpec{{Name: "target", Default: float64(5)}},
		nil, graph, rt)

	inv, err := m.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Done {
		t.Fatal("invocation should be suspended on the wait condition")
	}

	status, ok := m.ContextStatus(inv.ContextID)
	if !ok || status != StatusWaitingForEvent {
		t.Fatalf("expected WAITING_FOR_EVENT, got %v (%v)", status, ok)
	}

	// Scope подписан на переменную под своим id.
	level, _ := tree.ResolveVariable("plant/level")
	if !level.IsSubscribed(inv.ContextID) {
		t.Fatal("scope should be subscribed to plant/level")
	}

	// Запись ниже порога: условие всё ещё не выполнено.
	level.Write(float64(3))
	again, err := m.Resume(context.Background(), inv.ContextID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Done {
		t.Fatal("condition 3 >= 5 should not hold")
	}

	// Запись на пороге: условие выполнено, подписка снята, граф дошёл
	// до конца.
	level.Write(float64(5))
	final, err := m.Resume(context.Background(), inv.ContextID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !final.Done {
		t.Fatal("invocation should complete after the condition is met")
	}
	if level.IsSubscribed(inv.ContextID) {
		t.Error("subscription should be removed once the condition holds")
	}

	valve, _ := tree.ResolveVariable("plant/valve")
	if valve.Read() != false {
		t.Error("valve should be closed by the final node")
	}
}

func TestCompositeMethod_ScopeIDsNeverReused(t *testing.T) {
	tree := plantTree(t)
	rt := testRuntime(t, tree)

	graph := NewGraph(NewWaitCondition("plant/level", OpGE, float64(100)))
	m := NewCompositeMethod("m1", "plant/wait", nil, nil, graph, rt)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		inv, err := m.Start(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[inv.ContextID] {
			t.Fatalf("scope id %s reused", inv.ContextID)
		}
		seen[inv.ContextID] = true
	}
	if m.ActiveContexts() != 5 {
		t.Errorf("expected 5 live scopes, got %d", m.ActiveContexts())
	}
}

func TestCompositeMethod_ResumeUnknownContext(t *testing.T) {
	tree := plantTree(t)
	rt := testRuntime(t, tree)

	m := NewCompositeMethod("m1", "plant/noop", nil, nil, NewGraph(), rt)

	if _, err := m.Resume(context.Background(), "ghost"); !errors.Is(err, ErrContextNotFound) {
		t.Errorf("expected ErrContextNotFound, got %v", err)
	}
}

func TestCompositeMethod_CancelRemovesSubscription(t *testing.T) {
	tree := plantTree(t)
	rt := testRuntime(t, tree)

	graph := NewGraph(NewWaitCondition("plant/level", OpGE, float64(100)))
	m := NewCompositeMethod("m1", "plant/wait", nil, nil, graph, rt)

	inv, err := m.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs, err := m.Cancel(context.Background(), inv.ContextID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("local wait needs no outbound cleanup, got %d messages", len(msgs))
	}

	level, _ := tree.ResolveVariable("plant/level")
	if level.IsSubscribed(inv.ContextID) {
		t.Error("cancel should remove the scope subscription")
	}
	if m.HasContext(inv.ContextID) {
		t.Error("cancelled scope should be deleted")
	}
	if !m.IsTerminated(inv.ContextID) {
		t.Error("deleted scope reads as terminated")
	}
}

// Подписка scope'а, ждущего удалённого события, живёт на другой
// машине: отмена обязана вернуть запрос отписки, иначе та машина
// будет слать UPDATE на мёртвый correlation id бесконечно.
func TestCompositeMethod_CancelUnsubscribesRemoteWatch(t *testing.T) {
	tree := plantTree(t)
	rt := testRuntime(t, tree)

	graph := NewGraph(NewWaitRemoteEvent("m-remote", "unit/level", OpGE, float64(100)))
	m := NewCompositeMethod("m1", "plant/watch", nil, nil, graph, rt)

	inv, err := m.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv.Messages) != 1 || inv.Messages[0].Header.Name != wire.VariableSubscribe {
		t.Fatalf("expected SUBSCRIBE request, got %v", inv.Messages)
	}

	msgs, err := m.Cancel(context.Background(), inv.ContextID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Header.Name != wire.VariableUnsubscribe {
		t.Fatalf("expected UNSUBSCRIBE on cancel, got %v", msgs)
	}
	if msgs[0].Target != "m-remote" || msgs[0].CorrelationID != inv.ContextID {
		t.Errorf("misaddressed UNSUBSCRIBE: target=%s corr=%s", msgs[0].Target, msgs[0].CorrelationID)
	}
	if m.HasContext(inv.ContextID) {
		t.Error("cancelled scope should be deleted")
	}
}

func TestCompositeMethod_FailedNodeDoesNotAdvance(t *testing.T) {
	tree := plantTree(t)
	rt := testRuntime(t, tree)

	// Чтение несуществующей переменной фатально для scope'а.
	graph := NewGraph(
		NewWriteVariable("plant/level", float64(1)),
		NewReadVariable("plant/ghost", ""),
	)
	m := NewCompositeMethod("m1", "plant/broken", nil, nil, graph, rt)

	inv, err := m.Start(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error from missing variable")
	}
	if inv == nil {
		t.Fatal("failed invocation still carries emitted messages")
	}
	if m.ActiveContexts() != 0 {
		t.Error("failed scope should be deleted")
	}
}
