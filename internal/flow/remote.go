package flow

import (
	"fmt"

	"github.com/shaiso/Machina/internal/wire"
)

// executeRemote — машина состояний удалённого выполнения, общая для
// всех четырёх удалённых видов узлов. Состояния наблюдаются через
// статус scope'а:
//
//   - первый визит: строится запрос (correlation id = id scope'а),
//     статус → WAITING_FOR_RESPONSE, запрос отдаётся наружу, pc стоит;
//   - повторный визит в WAITING_FOR_RESPONSE: всё ещё ждём, сообщений нет;
//   - визит в RESPONSE_RECEIVED с закрытым запросом: узел завершён,
//     статус → RUNNING, pc продвигается. WaitRemoteEvent при этом
//     дополнительно отправляет запрос отписки.
func (n *Node) executeRemote(rt *Runtime, scope *Scope) (Result, error) {
	switch scope.Status {
	case StatusWaitingForResponse:
		// Всё ещё ждём ответа.
		return Result{OK: false}, nil

	case StatusResponseReceived:
		if scope.ActiveRequest != "" {
			// Ответ помечен принятым, но запрос не закрыт — ждём дальше.
			return Result{OK: false}, nil
		}
		scope.Status = StatusRunning
		scope.Touch()

		if n.Kind == KindWaitRemoteEvent {
			unsub, err := n.buildUnsubscribe(rt, scope)
			if err != nil {
				return Result{}, err
			}
			return Result{OK: true, Messages: []*wire.Message{unsub}}, nil
		}
		return Result{OK: true}, nil

	default:
		req, err := n.buildRequest(rt, scope)
		if err != nil {
			return Result{}, err
		}
		scope.ActiveRequest = req.CorrelationID
		scope.Status = StatusWaitingForResponse
		scope.Touch()
		return Result{OK: false, Messages: []*wire.Message{req}}, nil
	}
}

// buildRequest строит исходящий запрос для вида узла.
// Correlation id запроса равен id scope'а: по нему ответ найдёт
// этот scope на возобновлении.
func (n *Node) buildRequest(rt *Runtime, scope *Scope) (*wire.Message, error) {
	path, err := ResolvePath(n.Path, scope)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case KindCallRemoteMethod:
		args, kwargs, err := n.resolveArguments(scope)
		if err != nil {
			return nil, err
		}
		payload := wire.Payload{Method: &wire.MethodPayload{
			Node:   path,
			Args:   args,
			Kwargs: kwargs,
		}}
		return wire.NewRequest(rt.Machine, n.RemoteID, wire.NamespaceMethod, wire.MethodInvoke,
			payload, rt.IDs.NewID(), scope.ID), nil

	case KindReadRemoteVariable:
		payload := wire.Payload{Variable: &wire.VariablePayload{Node: path}}
		return wire.NewRequest(rt.Machine, n.RemoteID, wire.NamespaceVariable, wire.VariableRead,
			payload, rt.IDs.NewID(), scope.ID), nil

	case KindWriteRemoteVariable:
		value, err := ResolveValue(n.Value, scope)
		if err != nil {
			return nil, err
		}
		payload := wire.Payload{Variable: &wire.VariablePayload{Node: path, Value: value}}
		return wire.NewRequest(rt.Machine, n.RemoteID, wire.NamespaceVariable, wire.VariableWrite,
			payload, rt.IDs.NewID(), scope.ID), nil

	case KindWaitRemoteEvent:
		payload := wire.Payload{Subscription: &wire.SubscriptionPayload{
			Node:         path,
			SubscriberID: scope.ID,
		}}
		return wire.NewRequest(rt.Machine, n.RemoteID, wire.NamespaceVariable, wire.VariableSubscribe,
			payload, rt.IDs.NewID(), scope.ID), nil

	default:
		return nil, fmt.Errorf("node kind %q is not remote", n.Kind)
	}
}

// buildUnsubscribe строит запрос отписки после выполнения условия.
func (n *Node) buildUnsubscribe(rt *Runtime, scope *Scope) (*wire.Message, error) {
	path, err := ResolvePath(n.Path, scope)
	if err != nil {
		return nil, err
	}
	payload := wire.Payload{Subscription: &wire.SubscriptionPayload{
		Node:         path,
		SubscriberID: scope.ID,
	}}
	return wire.NewRequest(rt.Machine, n.RemoteID, wire.NamespaceVariable, wire.VariableUnsubscribe,
		payload, rt.IDs.NewID(), scope.ID), nil
}

// HandleResponse — единственный выход из WAITING_FOR_RESPONSE.
//
// Сообщение принимается, только если correlation id совпадает с
// незакрытым запросом scope'а, отправитель — целевая удалённая машина,
// получатель — эта машина, а нагрузка соответствует виду узла.
// Несовпадающее сообщение молча игнорируется (false, nil): чужой
// трафик не должен портить состояние. Структурно некорректный, но
// скоррелированный ответ — ошибка ErrBadResponse.
func (n *Node) HandleResponse(rt *Runtime, scope *Scope, msg *wire.Message) (bool, error) {
	if scope.Status != StatusWaitingForResponse || scope.ActiveRequest == "" {
		return false, nil
	}
	if msg.CorrelationID != scope.ActiveRequest {
		return false, nil
	}
	if msg.Sender != n.RemoteID || msg.Target != rt.Machine {
		return false, nil
	}

	if msg.IsError() {
		scope.ActiveRequest = ""
		if msg.Payload.Error != nil {
			return true, fmt.Errorf("%w: %s: %s", ErrRemoteFailed, msg.Payload.Error.Code, msg.Payload.Error.Message)
		}
		return true, ErrRemoteFailed
	}

	switch n.Kind {
	case KindCallRemoteMethod:
		return n.acceptMethodResponse(scope, msg)
	case KindReadRemoteVariable:
		return n.acceptReadResponse(scope, msg)
	case KindWriteRemoteVariable:
		return n.acceptWriteResponse(scope, msg)
	case KindWaitRemoteEvent:
		return n.acceptEventResponse(scope, msg)
	default:
		return false, nil
	}
}

// acceptMethodResponse обрабатывает ответ на INVOKE.
// STARTED означает, что удалённый вызов приостановился: сообщение
// наше, но ждём финального COMPLETED с тем же correlation id.
func (n *Node) acceptMethodResponse(scope *Scope, msg *wire.Message) (bool, error) {
	if msg.Header.Namespace != wire.NamespaceMethod || msg.Payload.Method == nil {
		return false, fmt.Errorf("%w: expected METHOD payload, got %s/%s",
			ErrBadResponse, msg.Header.Namespace, msg.Header.Name)
	}

	switch msg.Header.Name {
	case wire.MethodStarted:
		return true, nil
	case wire.MethodCompleted:
		scope.MergeLocals(msg.Payload.Method.Returns)
		n.accept(scope)
		return true, nil
	default:
		return false, fmt.Errorf("%w: unexpected METHOD message %s", ErrBadResponse, msg.Header.Name)
	}
}

// acceptReadResponse обрабатывает ответ на READ.
func (n *Node) acceptReadResponse(scope *Scope, msg *wire.Message) (bool, error) {
	if msg.Header.Namespace != wire.NamespaceVariable || msg.Header.Name != wire.VariableRead ||
		msg.Payload.Variable == nil {
		return false, fmt.Errorf("%w: expected VARIABLE/READ payload, got %s/%s",
			ErrBadResponse, msg.Header.Namespace, msg.Header.Name)
	}

	name := msg.Payload.Variable.Node
	if name == "" {
		name = n.Path
	}
	scope.SetLocal(n.storeName(remotePathName(name)), msg.Payload.Variable.Value)
	n.accept(scope)
	return true, nil
}

// acceptWriteResponse обрабатывает подтверждение WRITE.
func (n *Node) acceptWriteResponse(scope *Scope, msg *wire.Message) (bool, error) {
	if msg.Header.Namespace != wire.NamespaceVariable || msg.Header.Name != wire.VariableWrite {
		return false, fmt.Errorf("%w: expected VARIABLE/WRITE ack, got %s/%s",
			ErrBadResponse, msg.Header.Namespace, msg.Header.Name)
	}
	n.accept(scope)
	return true, nil
}

// acceptEventResponse обрабатывает подтверждение подписки и UPDATE.
// UPDATE с невыполненным условием потребляется, но scope остаётся
// в ожидании следующего.
func (n *Node) acceptEventResponse(scope *Scope, msg *wire.Message) (bool, error) {
	if msg.Header.Namespace != wire.NamespaceVariable {
		return false, fmt.Errorf("%w: expected VARIABLE message, got %s/%s",
			ErrBadResponse, msg.Header.Namespace, msg.Header.Name)
	}

	switch msg.Header.Name {
	case wire.VariableSubscribe:
		// Подтверждение подписки: наше, но события ещё нет.
		return true, nil

	case wire.VariableUpdate:
		if msg.Payload.Variable == nil {
			return false, fmt.Errorf("%w: UPDATE without variable payload", ErrBadResponse)
		}

		rhs, err := ResolveValue(n.RHS, scope)
		if err != nil {
			return true, err
		}
		met, err := Compare(msg.Payload.Variable.Value, n.Op, rhs)
		if err != nil {
			return true, err
		}
		if !met {
			return true, nil
		}

		name := msg.Payload.Variable.Node
		if name == "" {
			name = n.Path
		}
		scope.SetLocal(n.storeName(remotePathName(name)), msg.Payload.Variable.Value)
		n.accept(scope)
		return true, nil

	default:
		return false, fmt.Errorf("%w: unexpected VARIABLE message %s", ErrBadResponse, msg.Header.Name)
	}
}

// accept закрывает незакрытый запрос и помечает ответ принятым.
func (n *Node) accept(scope *Scope) {
	scope.ActiveRequest = ""
	scope.Status = StatusResponseReceived
	scope.Touch()
}
