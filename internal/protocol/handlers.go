package protocol

import (
	"context"
	"fmt"

	"github.com/shaiso/Machina/internal/flow"
	"github.com/shaiso/Machina/internal/wire"
)

// handleRunning доставляет входящее сообщение приостановленному вызову.
func (m *Manager) handleRunning(ctx context.Context, entry runningEntry, msg *wire.Message) {
	contextID := msg.CorrelationID

	accepted, err := entry.method.HandleMessage(ctx, contextID, msg)
	if !accepted {
		if err != nil {
			// Скоррелированный, но структурно некорректный ответ:
			// scope остаётся в ожидании, инцидент — в лог.
			m.logger.Warn("bad response for pending request",
				"scope_id", contextID,
				"message", msg.Header.Name,
				"error", err,
			)
			return
		}
		// Несоответствующий трафик молча игнорируется.
		m.logger.Debug("unrelated message ignored", "scope_id", contextID)
		return
	}

	if err != nil {
		// Ответ принят, но он фатален для scope'а (ERROR от удалённой
		// машины или невычислимое условие).
		m.finishRunning(contextID, entry, nil, err)
		return
	}

	inv, rerr := entry.method.Resume(ctx, contextID)
	m.finishRunning(contextID, entry, inv, rerr)
}

// finishRunning — общая пост-обработка возобновления вызова из реестра.
//
// Завершённый вызов получает COMPLETED, адресованный отправителю
// исходного запроса этого scope'а (запрос берётся из записи реестра,
// найденной по scope id — никогда из кэша другого вызова). Ошибка
// превращается в ERROR тому же адресату. Всё ещё приостановленный
// вызов лишь пересылает наружу испущенные графом сообщения.
func (m *Manager) finishRunning(contextID string, entry runningEntry, inv *flow.Invocation, err error) {
	if inv != nil {
		m.emitAll(inv.Messages)
	}

	if err != nil {
		m.removeRunning(contextID)
		entry.method.DeleteContext(contextID)
		m.emit(wire.NewErrorResponse(entry.request, codeFor(err), err.Error(), m.ids.NewID()))
		return
	}

	if inv == nil || !inv.Done {
		return
	}

	m.removeRunning(contextID)
	payload := wire.Payload{Method: &wire.MethodPayload{
		Node:    entry.request.Payload.Method.Node,
		Returns: inv.Returns,
	}}
	m.emit(wire.NewResponse(entry.request, wire.MethodCompleted, payload, m.ids.NewID()))
}

// handleProtocol обрабатывает REGISTER/UNREGISTER пиров.
func (m *Manager) handleProtocol(msg *wire.Message) {
	switch msg.Header.Name {
	case wire.ProtocolRegister:
		m.mu.Lock()
		m.peers[msg.Sender] = true
		m.mu.Unlock()

		m.logger.Info("peer registered", "peer", msg.Sender)
		m.emit(wire.NewResponse(msg, wire.ProtocolRegister, wire.Payload{}, m.ids.NewID()))

	case wire.ProtocolUnregister:
		m.mu.Lock()
		delete(m.peers, msg.Sender)
		dropped := make(map[string]remoteSub)
		for id, sub := range m.remoteSubs {
			if sub.peer == msg.Sender {
				dropped[id] = sub
				delete(m.remoteSubs, id)
			}
		}
		m.mu.Unlock()

		// Подписки ушедшего пира снимаются вместе с ним.
		for id, sub := range dropped {
			sub.variable.Unsubscribe(id)
		}

		m.logger.Info("peer unregistered", "peer", msg.Sender, "dropped_subscriptions", len(dropped))
		m.emit(wire.NewResponse(msg, wire.ProtocolUnregister, wire.Payload{}, m.ids.NewID()))

	default:
		m.emit(wire.NewErrorResponse(msg, wire.CodeBadRequest,
			fmt.Sprintf("unknown PROTOCOL message %q", msg.Header.Name), m.ids.NewID()))
	}
}

// handleVariable обрабатывает READ/WRITE/SUBSCRIBE/UNSUBSCRIBE.
func (m *Manager) handleVariable(ctx context.Context, msg *wire.Message) {
	switch msg.Header.Name {
	case wire.VariableRead:
		m.handleVariableRead(msg)
	case wire.VariableWrite:
		m.handleVariableWrite(msg)
	case wire.VariableSubscribe:
		m.handleVariableSubscribe(msg)
	case wire.VariableUnsubscribe:
		m.handleVariableUnsubscribe(msg)
	default:
		m.emit(wire.NewErrorResponse(msg, wire.CodeUnsupportedOperation,
			fmt.Sprintf("unsupported VARIABLE message %q", msg.Header.Name), m.ids.NewID()))
	}
}

func (m *Manager) handleVariableRead(msg *wire.Message) {
	p := msg.Payload.Variable
	if p == nil {
		m.emit(wire.NewErrorResponse(msg, wire.CodeBadRequest, "READ without variable payload", m.ids.NewID()))
		return
	}

	v, err := m.tree.ResolveVariable(p.Node)
	if err != nil {
		m.emit(wire.NewErrorResponse(msg, codeFor(err), err.Error(), m.ids.NewID()))
		return
	}

	payload := wire.Payload{Variable: &wire.VariablePayload{Node: p.Node, Value: v.Read()}}
	m.emit(wire.NewResponse(msg, wire.VariableRead, payload, m.ids.NewID()))
}

func (m *Manager) handleVariableWrite(msg *wire.Message) {
	p := msg.Payload.Variable
	if p == nil {
		m.emit(wire.NewErrorResponse(msg, wire.CodeBadRequest, "WRITE without variable payload", m.ids.NewID()))
		return
	}

	v, err := m.tree.ResolveVariable(p.Node)
	if err != nil {
		m.emit(wire.NewErrorResponse(msg, codeFor(err), err.Error(), m.ids.NewID()))
		return
	}

	// Запись синхронно уведомит подписчиков через OnVariableWrite;
	// порождённые сообщения попадут в ту же исходящую очередь.
	if !v.Write(p.Value) {
		m.emit(wire.NewErrorResponse(msg, wire.CodeNotAllowed,
			fmt.Sprintf("variable %s rejected the write", p.Node), m.ids.NewID()))
		return
	}

	payload := wire.Payload{Variable: &wire.VariablePayload{Node: p.Node}}
	m.emit(wire.NewResponse(msg, wire.VariableWrite, payload, m.ids.NewID()))
}

func (m *Manager) handleVariableSubscribe(msg *wire.Message) {
	p := msg.Payload.Subscription
	if p == nil {
		m.emit(wire.NewErrorResponse(msg, wire.CodeBadRequest, "SUBSCRIBE without subscription payload", m.ids.NewID()))
		return
	}

	v, err := m.tree.ResolveVariable(p.Node)
	if err != nil {
		m.emit(wire.NewErrorResponse(msg, codeFor(err), err.Error(), m.ids.NewID()))
		return
	}

	v.Subscribe(p.SubscriberID)
	m.mu.Lock()
	m.remoteSubs[p.SubscriberID] = remoteSub{peer: msg.Sender, node: p.Node, variable: v}
	m.mu.Unlock()

	payload := wire.Payload{Subscription: &wire.SubscriptionPayload{Node: p.Node, SubscriberID: p.SubscriberID}}
	m.emit(wire.NewResponse(msg, wire.VariableSubscribe, payload, m.ids.NewID()))
}

func (m *Manager) handleVariableUnsubscribe(msg *wire.Message) {
	p := msg.Payload.Subscription
	if p == nil {
		m.emit(wire.NewErrorResponse(msg, wire.CodeBadRequest, "UNSUBSCRIBE without subscription payload", m.ids.NewID()))
		return
	}

	m.mu.Lock()
	sub, ok := m.remoteSubs[p.SubscriberID]
	delete(m.remoteSubs, p.SubscriberID)
	m.mu.Unlock()

	if ok {
		sub.variable.Unsubscribe(p.SubscriberID)
	} else if v, err := m.tree.ResolveVariable(p.Node); err == nil {
		v.Unsubscribe(p.SubscriberID)
	}

	payload := wire.Payload{Subscription: &wire.SubscriptionPayload{Node: p.Node, SubscriberID: p.SubscriberID}}
	m.emit(wire.NewResponse(msg, wire.VariableUnsubscribe, payload, m.ids.NewID()))
}

// handleMethod обрабатывает INVOKE.
//
// Composite method, приостановившийся после первого прогона,
// регистрируется в реестре под своим context id, а вызывающей стороне
// уходит STARTED с "@context_id". Обычный метод дерева выполняется
// синхронно и сразу отвечает COMPLETED.
func (m *Manager) handleMethod(ctx context.Context, msg *wire.Message) {
	if msg.Header.Name != wire.MethodInvoke {
		m.emit(wire.NewErrorResponse(msg, wire.CodeUnsupportedOperation,
			fmt.Sprintf("unsupported METHOD message %q", msg.Header.Name), m.ids.NewID()))
		return
	}

	p := msg.Payload.Method
	if p == nil {
		m.emit(wire.NewErrorResponse(msg, wire.CodeBadRequest, "INVOKE without method payload", m.ids.NewID()))
		return
	}

	m.mu.Lock()
	composite, isComposite := m.methods[p.Node]
	m.mu.Unlock()

	if isComposite {
		m.invokeComposite(ctx, composite, msg, p)
		return
	}

	method, err := m.tree.ResolveMethod(p.Node)
	if err != nil {
		m.emit(wire.NewErrorResponse(msg, codeFor(err), err.Error(), m.ids.NewID()))
		return
	}

	returns, err := method.Invoke(p.Args, p.Kwargs)
	if err != nil {
		m.emit(wire.NewErrorResponse(msg, wire.CodeInternal, err.Error(), m.ids.NewID()))
		return
	}

	payload := wire.Payload{Method: &wire.MethodPayload{Node: p.Node, Returns: returns}}
	m.emit(wire.NewResponse(msg, wire.MethodCompleted, payload, m.ids.NewID()))
}

// invokeComposite запускает composite method по входящему INVOKE.
func (m *Manager) invokeComposite(ctx context.Context, composite *flow.CompositeMethod, msg *wire.Message, p *wire.MethodPayload) {
	kwargs := make(map[string]any, len(p.Kwargs)+len(p.Args))
	// Позиционные аргументы привязываются к объявленным параметрам
	// по порядку, именованные накладываются поверх.
	for i, arg := range p.Args {
		if i >= len(composite.Params) {
			break
		}
		kwargs[composite.Params[i].Name] = arg
	}
	for k, v := range p.Kwargs {
		kwargs[k] = v
	}

	inv, err := composite.Start(ctx, kwargs)
	if inv != nil {
		m.emitAll(inv.Messages)
	}
	if err != nil {
		m.emit(wire.NewErrorResponse(msg, codeFor(err), err.Error(), m.ids.NewID()))
		return
	}

	if inv.Done {
		payload := wire.Payload{Method: &wire.MethodPayload{Node: p.Node, Returns: inv.Returns}}
		m.emit(wire.NewResponse(msg, wire.MethodCompleted, payload, m.ids.NewID()))
		return
	}

	m.addRunning(inv.ContextID, composite, msg)
	payload := wire.Payload{Method: &wire.MethodPayload{
		Node:    p.Node,
		Returns: map[string]any{flow.ContextIDKey: inv.ContextID},
	}}
	m.emit(wire.NewResponse(msg, wire.MethodStarted, payload, m.ids.NewID()))
}
