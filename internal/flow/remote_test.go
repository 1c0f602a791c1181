package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/shaiso/Machina/internal/model"
	"github.com/shaiso/Machina/internal/trace"
	"github.com/shaiso/Machina/internal/wire"
)

func remoteRuntime(t *testing.T) *Runtime {
	t.Helper()
	return &Runtime{
		Machine: "m-local",
		Tree:    model.NewTree(),
		IDs:     &SequenceIDs{Prefix: "id"},
		Sink:    trace.NopSink{},
	}
}

func TestExecuteRemote_FirstVisitEmitsRequest(t *testing.T) {
	rt := remoteRuntime(t)
	scope := NewScope("scope-1", nil)
	scope.Status = StatusRunning

	node := NewCallRemoteMethod("m-remote", "unit/start", nil, map[string]any{"speed": 3})

	res, err := node.Execute(rt, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("remote node must suspend on first visit")
	}
	if len(res.Messages) != 1 {
		t.Fatalf("expected 1 request, got %d", len(res.Messages))
	}

	req := res.Messages[0]
	if req.CorrelationID != scope.ID {
		t.Errorf("correlation id %q should equal scope id %q", req.CorrelationID, scope.ID)
	}
	if req.Identifier == req.CorrelationID {
		t.Error("message identifier must be distinct from correlation id")
	}
	if req.Sender != "m-local" || req.Target != "m-remote" {
		t.Errorf("unexpected addressing %s -> %s", req.Sender, req.Target)
	}
	if scope.Status != StatusWaitingForResponse {
		t.Errorf("expected WAITING_FOR_RESPONSE, got %s", scope.Status)
	}
	if scope.ActiveRequest != req.CorrelationID {
		t.Error("active request must record the outstanding correlation id")
	}
}

func TestExecuteRemote_SecondVisitIsSilent(t *testing.T) {
	rt := remoteRuntime(t)
	scope := NewScope("scope-1", nil)
	scope.Status = StatusRunning

	node := NewReadRemoteVariable("m-remote", "unit/level", "")

	first, err := node.Execute(rt, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Messages) != 1 {
		t.Fatalf("expected a request, got %d messages", len(first.Messages))
	}

	// Повторный визит в ожидании: ни нового запроса, ни продвижения.
	second, err := node.Execute(rt, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.OK || len(second.Messages) != 0 {
		t.Error("waiting node must not re-emit its request")
	}
}

func TestHandleResponse_ReadStoresValue(t *testing.T) {
	rt := remoteRuntime(t)
	scope := NewScope("scope-1", nil)
	scope.Status = StatusRunning

	node := NewReadRemoteVariable("m-remote", "unit/level", "")
	res, _ := node.Execute(rt, scope)
	req := res.Messages[0]

	resp := wire.NewResponse(req, wire.VariableRead,
		wire.Payload{Variable: &wire.VariablePayload{Node: "unit/level", Value: float64(17)}}, "resp-1")

	accepted, err := node.HandleResponse(rt, scope, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !accepted {
		t.Fatal("correlated response must be accepted")
	}
	if scope.Status != StatusResponseReceived {
		t.Errorf("expected RESPONSE_RECEIVED, got %s", scope.Status)
	}
	if scope.ActiveRequest != "" {
		t.Error("accepted response must close the outstanding request")
	}

	// Значение сохранено под именем узла.
	if v, _ := scope.Local("level"); v != float64(17) {
		t.Errorf("expected level=17 in locals, got %v", v)
	}

	// Следующее выполнение узла продвигает scope.
	after, err := node.Execute(rt, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !after.OK {
		t.Error("node must complete after the response is consumed")
	}
	if scope.Status != StatusRunning {
		t.Errorf("expected RUNNING, got %s", scope.Status)
	}
}

func TestHandleResponse_IgnoresUnrelatedTraffic(t *testing.T) {
	rt := remoteRuntime(t)
	scope := NewScope("scope-1", nil)
	scope.Status = StatusRunning

	node := NewReadRemoteVariable("m-remote", "unit/level", "")
	res, _ := node.Execute(rt, scope)
	req := res.Messages[0]

	tests := []struct {
		name string
		msg  *wire.Message
	}{
		{
			name: "wrong correlation id",
			msg: &wire.Message{
				Sender: "m-remote", Target: "m-local",
				Header:        wire.Header{Type: wire.TypeResponse, Version: wire.CurrentVersion, Namespace: wire.NamespaceVariable, Name: wire.VariableRead},
				Payload:       wire.Payload{Variable: &wire.VariablePayload{Node: "unit/level", Value: 1}},
				Identifier:    "x-1",
				CorrelationID: "someone-else",
			},
		},
		{
			name: "wrong sender",
			msg: &wire.Message{
				Sender: "m-imposter", Target: "m-local",
				Header:        wire.Header{Type: wire.TypeResponse, Version: wire.CurrentVersion, Namespace: wire.NamespaceVariable, Name: wire.VariableRead},
				Payload:       wire.Payload{Variable: &wire.VariablePayload{Node: "unit/level", Value: 1}},
				Identifier:    "x-2",
				CorrelationID: req.CorrelationID,
			},
		},
		{
			name: "wrong target",
			msg: &wire.Message{
				Sender: "m-remote", Target: "m-other",
				Header:        wire.Header{Type: wire.TypeResponse, Version: wire.CurrentVersion, Namespace: wire.NamespaceVariable, Name: wire.VariableRead},
				Payload:       wire.Payload{Variable: &wire.VariablePayload{Node: "unit/level", Value: 1}},
				Identifier:    "x-3",
				CorrelationID: req.CorrelationID,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted, err := node.HandleResponse(rt, scope, tt.msg)
			if accepted || err != nil {
				t.Errorf("unrelated message must be silently ignored, got accepted=%v err=%v", accepted, err)
			}
			if scope.Status != StatusWaitingForResponse {
				t.Errorf("scope must stay parked, got %s", scope.Status)
			}
		})
	}
}

func TestHandleResponse_BadPayloadIsAnError(t *testing.T) {
	rt := remoteRuntime(t)
	scope := NewScope("scope-1", nil)
	scope.Status = StatusRunning

	node := NewReadRemoteVariable("m-remote", "unit/level", "")
	res, _ := node.Execute(rt, scope)
	req := res.Messages[0]

	// Скоррелированный ответ с нагрузкой не того вида.
	resp := wire.NewResponse(req, wire.MethodCompleted,
		wire.Payload{Method: &wire.MethodPayload{Node: "unit/level"}}, "resp-1")
	resp.Header.Namespace = wire.NamespaceMethod

	accepted, err := node.HandleResponse(rt, scope, resp)
	if accepted {
		t.Error("malformed correlated response must not be accepted")
	}
	if !errors.Is(err, ErrBadResponse) {
		t.Errorf("expected ErrBadResponse, got %v", err)
	}
}

func TestHandleResponse_RemoteError(t *testing.T) {
	rt := remoteRuntime(t)
	scope := NewScope("scope-1", nil)
	scope.Status = StatusRunning

	node := NewCallRemoteMethod("m-remote", "unit/start", nil, nil)
	res, _ := node.Execute(rt, scope)
	req := res.Messages[0]

	resp := wire.NewErrorResponse(req, wire.CodeNodeNotFound, "no such node", "resp-1")

	accepted, err := node.HandleResponse(rt, scope, resp)
	if !accepted {
		t.Fatal("correlated error response belongs to this scope")
	}
	if !errors.Is(err, ErrRemoteFailed) {
		t.Errorf("expected ErrRemoteFailed, got %v", err)
	}
}

func TestHandleResponse_StartedKeepsWaiting(t *testing.T) {
	rt := remoteRuntime(t)
	scope := NewScope("scope-1", nil)
	scope.Status = StatusRunning

	node := NewCallRemoteMethod("m-remote", "unit/start", nil, nil)
	res, _ := node.Execute(rt, scope)
	req := res.Messages[0]

	started := wire.NewResponse(req, wire.MethodStarted,
		wire.Payload{Method: &wire.MethodPayload{
			Node:    "unit/start",
			Returns: map[string]any{ContextIDKey: "remote-ctx-1"},
		}}, "resp-1")

	accepted, err := node.HandleResponse(rt, scope, started)
	if !accepted || err != nil {
		t.Fatalf("STARTED must be consumed, got accepted=%v err=%v", accepted, err)
	}
	if scope.Status != StatusWaitingForResponse {
		t.Errorf("scope must keep waiting for COMPLETED, got %s", scope.Status)
	}

	completed := wire.NewResponse(req, wire.MethodCompleted,
		wire.Payload{Method: &wire.MethodPayload{
			Node:    "unit/start",
			Returns: map[string]any{"rpm": float64(1500)},
		}}, "resp-2")

	accepted, err = node.HandleResponse(rt, scope, completed)
	if !accepted || err != nil {
		t.Fatalf("COMPLETED must be accepted, got accepted=%v err=%v", accepted, err)
	}
	if v, _ := scope.Local("rpm"); v != float64(1500) {
		t.Errorf("returns must be merged into locals, got %v", v)
	}
	if scope.Status != StatusResponseReceived {
		t.Errorf("expected RESPONSE_RECEIVED, got %s", scope.Status)
	}
}

func TestWaitRemoteEvent_UpdateEvaluation(t *testing.T) {
	rt := remoteRuntime(t)
	scope := NewScope("scope-1", map[string]any{"threshold": float64(50)})
	scope.Status = StatusRunning

	node := NewWaitRemoteEvent("m-remote", "unit/level", OpGE, "$threshold")

	res, err := node.Execute(rt, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := res.Messages[0]
	if req.Header.Name != wire.VariableSubscribe {
		t.Fatalf("expected SUBSCRIBE request, got %s", req.Header.Name)
	}

	// Подтверждение подписки: потребляется, событие ещё впереди.
	ack := wire.NewResponse(req, wire.VariableSubscribe,
		wire.Payload{Subscription: &wire.SubscriptionPayload{Node: "unit/level", SubscriberID: scope.ID}}, "resp-1")
	accepted, err := node.HandleResponse(rt, scope, ack)
	if !accepted || err != nil {
		t.Fatalf("subscribe ack must be consumed, got accepted=%v err=%v", accepted, err)
	}
	if scope.Status != StatusWaitingForResponse {
		t.Errorf("scope must keep waiting after the ack, got %s", scope.Status)
	}

	// UPDATE ниже порога: потребляется, ожидание продолжается.
	low := wire.NewResponse(req, wire.VariableUpdate,
		wire.Payload{Variable: &wire.VariablePayload{Node: "unit/level", Value: float64(30)}}, "resp-2")
	accepted, err = node.HandleResponse(rt, scope, low)
	if !accepted || err != nil {
		t.Fatalf("unmet UPDATE must be consumed, got accepted=%v err=%v", accepted, err)
	}
	if scope.Status != StatusWaitingForResponse {
		t.Errorf("unmet UPDATE must keep the scope parked, got %s", scope.Status)
	}

	// UPDATE на пороге: условие выполнено.
	high := wire.NewResponse(req, wire.VariableUpdate,
		wire.Payload{Variable: &wire.VariablePayload{Node: "unit/level", Value: float64(60)}}, "resp-3")
	accepted, err = node.HandleResponse(rt, scope, high)
	if !accepted || err != nil {
		t.Fatalf("met UPDATE must be accepted, got accepted=%v err=%v", accepted, err)
	}
	if v, _ := scope.Local("level"); v != float64(60) {
		t.Errorf("triggering value must land in locals, got %v", v)
	}

	// Следующее выполнение продвигает узел и отправляет отписку.
	after, err := node.Execute(rt, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !after.OK {
		t.Fatal("node must complete after the met UPDATE")
	}
	if len(after.Messages) != 1 || after.Messages[0].Header.Name != wire.VariableUnsubscribe {
		t.Fatalf("expected UNSUBSCRIBE on resumption, got %v", after.Messages)
	}
}

func TestGraph_AtMostOneOutstandingRequest(t *testing.T) {
	rt := remoteRuntime(t)

	graph := NewGraph(
		NewReadRemoteVariable("m-remote", "unit/a", ""),
		NewReadRemoteVariable("m-remote", "unit/b", ""),
	)
	m := NewCompositeMethod("m1", "unit/sample", nil, []string{"a", "b"}, graph, rt)

	inv, err := m.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Done {
		t.Fatal("invocation must suspend on the first remote node")
	}
	if len(inv.Messages) != 1 {
		t.Fatalf("exactly one request may be outstanding, got %d", len(inv.Messages))
	}
	first := inv.Messages[0]

	// Ответ на первый запрос: принят, возобновление шлёт второй запрос.
	resp := wire.NewResponse(first, wire.VariableRead,
		wire.Payload{Variable: &wire.VariablePayload{Node: "unit/a", Value: float64(1)}}, "resp-1")
	accepted, err := m.HandleMessage(context.Background(), inv.ContextID, resp)
	if !accepted || err != nil {
		t.Fatalf("response must be accepted, got accepted=%v err=%v", accepted, err)
	}

	second, err := m.Resume(context.Background(), inv.ContextID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Done {
		t.Fatal("second remote node must suspend in turn")
	}
	if len(second.Messages) != 1 {
		t.Fatalf("expected exactly the second request, got %d", len(second.Messages))
	}
	if second.Messages[0].Payload.Variable.Node != "unit/b" {
		t.Errorf("expected request for unit/b, got %s", second.Messages[0].Payload.Variable.Node)
	}

	// Ответ на второй запрос завершает вызов.
	resp2 := wire.NewResponse(second.Messages[0], wire.VariableRead,
		wire.Payload{Variable: &wire.VariablePayload{Node: "unit/b", Value: float64(2)}}, "resp-2")
	accepted, err = m.HandleMessage(context.Background(), inv.ContextID, resp2)
	if !accepted || err != nil {
		t.Fatalf("response must be accepted, got accepted=%v err=%v", accepted, err)
	}
	final, err := m.Resume(context.Background(), inv.ContextID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !final.Done {
		t.Fatal("invocation must complete after both reads")
	}
	if final.Returns["a"] != float64(1) || final.Returns["b"] != float64(2) {
		t.Errorf("unexpected returns: %v", final.Returns)
	}
}

func TestHandleMessage_NotWaiting(t *testing.T) {
	rt := remoteRuntime(t)

	// Граф с локальным узлом в текущей позиции ничего не ждёт.
	tree := model.NewTree()
	if _, err := tree.AddVariable("", "x", float64(0), nil); err != nil {
		t.Fatal(err)
	}
	rt.Tree = tree

	graph := NewGraph(
		NewWaitCondition("x", OpGE, float64(10)),
	)
	m := NewCompositeMethod("m1", "wait-x", nil, nil, graph, rt)

	inv, err := m.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := &wire.Message{
		Sender: "m-remote", Target: "m-local",
		Header:        wire.Header{Type: wire.TypeResponse, Version: wire.CurrentVersion, Namespace: wire.NamespaceVariable, Name: wire.VariableRead},
		Payload:       wire.Payload{Variable: &wire.VariablePayload{Node: "x", Value: 1}},
		Identifier:    "x-1",
		CorrelationID: inv.ContextID,
	}

	accepted, err := m.HandleMessage(context.Background(), inv.ContextID, msg)
	if accepted {
		t.Error("scope waiting for a local event must not accept wire messages")
	}
	if !errors.Is(err, ErrNotWaiting) {
		t.Errorf("expected ErrNotWaiting, got %v", err)
	}
}
