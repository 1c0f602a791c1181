package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shaiso/Machina/internal/trace"
	"github.com/shaiso/Machina/internal/wire"
)

// ContextIDKey — имя возвращаемого значения с context id
// приостановленного вызова.
const ContextIDKey = "@context_id"

// ParamSpec — объявление параметра composite method.
type ParamSpec struct {
	// Name — имя параметра (и local, в который он попадает).
	Name string

	// Default — значение по умолчанию, если аргумент не передан.
	Default any
}

// Invocation — результат Start или Resume.
type Invocation struct {
	// Done — вызов завершён, Returns заполнены.
	Done bool

	// ContextID — id scope'а, если вызов приостановлен.
	ContextID string

	// Returns — собранные возвращаемые значения завершённого вызова.
	Returns map[string]any

	// Messages — сообщения, которые должны уйти в транспорт.
	Messages []*wire.Message
}

// CompositeMethod — определённая оператором процедура: один граф
// и коллекция живых scope'ов по id.
//
// Много независимых вызовов может быть в полёте одновременно; карта
// scope'ов защищена мьютексом, но сам scope однописательный —
// одновременное возобновление одного context id исключается
// владельцем (протокольным менеджером).
type CompositeMethod struct {
	// ID — уникальный идентификатор метода.
	ID string

	// Name — человеко-читаемое имя.
	Name string

	// Params — объявленные параметры.
	Params []ParamSpec

	// Returns — имена locals, образующих возвращаемые значения.
	Returns []string

	graph *Graph
	rt    *Runtime

	mu     sync.Mutex
	scopes map[string]*Scope
}

// NewCompositeMethod создаёт composite method.
func NewCompositeMethod(id, name string, params []ParamSpec, returns []string, graph *Graph, rt *Runtime) *CompositeMethod {
	return &CompositeMethod{
		ID:      id,
		Name:    name,
		Params:  params,
		Returns: returns,
		graph:   graph,
		rt:      rt,
		scopes:  make(map[string]*Scope),
	}
}

// Graph возвращает граф метода.
func (m *CompositeMethod) Graph() *Graph { return m.graph }

// Start создаёт новый scope и выполняет граф с начала.
//
// Id scope'а генерируется заново на каждый вызов и никогда не
// переиспользуется, даже для идентичных аргументов. Если после
// прогона scope остался активен, возвращается ContextID; иначе —
// собранные возвращаемые значения, и scope удаляется.
func (m *CompositeMethod) Start(ctx context.Context, kwargs map[string]any) (*Invocation, error) {
	seeded := make(map[string]any, len(m.Params)+len(kwargs))
	for _, p := range m.Params {
		if p.Default != nil {
			seeded[p.Name] = p.Default
		}
	}
	for k, v := range kwargs {
		seeded[k] = v
	}

	scope := NewScope(m.rt.IDs.NewID(), seeded)

	m.mu.Lock()
	m.scopes[scope.ID] = scope
	m.mu.Unlock()

	m.record(ctx, trace.EventScopeCreated, scope.ID, "")

	scope.Status = StatusRunning
	msgs, err := m.graph.Execute(m.rt, scope)
	return m.settle(ctx, scope, msgs, err)
}

// Resume повторно выполняет граф scope'а с его текущего pc.
func (m *CompositeMethod) Resume(ctx context.Context, contextID string) (*Invocation, error) {
	scope, err := m.scope(contextID)
	if err != nil {
		return nil, err
	}

	m.record(ctx, trace.EventScopeResumed, contextID, "")

	msgs, err := m.graph.Execute(m.rt, scope)
	return m.settle(ctx, scope, msgs, err)
}

// HandleMessage доставляет ответное сообщение scope'у.
//
// Узел в текущей позиции графа обязан быть удалённым — иначе scope
// ничего не ждёт и сообщение адресовано не сюда. Возвращает true,
// если сообщение принято узлом (после этого владелец вызывает Resume).
func (m *CompositeMethod) HandleMessage(ctx context.Context, contextID string, msg *wire.Message) (bool, error) {
	scope, err := m.scope(contextID)
	if err != nil {
		return false, err
	}

	node := m.graph.NodeAt(scope.PC)
	if node == nil || !node.Kind.IsRemote() {
		return false, fmt.Errorf("%w: context %s", ErrNotWaiting, contextID)
	}

	accepted, err := node.HandleResponse(m.rt, scope, msg)
	if accepted && err != nil {
		// Скоррелированный ответ сообщил об ошибке: scope фатально
		// завершается, владелец наблюдает FAILED и удаляет его.
		scope.Fail(err)
		m.record(ctx, trace.EventScopeFailed, contextID, err.Error())
		return true, err
	}
	return accepted, err
}

// IsTerminated возвращает true, если scope завершён или уже удалён.
func (m *CompositeMethod) IsTerminated(contextID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope, ok := m.scopes[contextID]
	if !ok {
		return true
	}
	return scope.Status.IsTerminal()
}

// DeleteContext удаляет scope. Отсутствующий id игнорируется.
func (m *CompositeMethod) DeleteContext(contextID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scopes, contextID)
}

// Cancel отменяет приостановленный scope: снимает его подписку с
// ожидаемой переменной, помечает FAILED и удаляет. Для scope'а,
// стоящего на удалённом ожидании события, возвращается запрос отписки
// к удалённой машине — без него та продолжила бы слать UPDATE на уже
// мёртвый correlation id.
//
// Уже отправленный удалённый запрос не отзывается — его возможный
// ответ будет молча проигнорирован как несоответствующий.
func (m *CompositeMethod) Cancel(ctx context.Context, contextID string) ([]*wire.Message, error) {
	scope, err := m.scope(contextID)
	if err != nil {
		return nil, err
	}

	var msgs []*wire.Message
	if node := m.graph.NodeAt(scope.PC); node != nil {
		switch {
		case node.Kind == KindWaitCondition:
			if v, rerr := node.resolveVariable(m.rt, scope); rerr == nil {
				v.Unsubscribe(scope.ID)
			}
		case node.Kind == KindWaitRemoteEvent && scope.subscribedRemotely():
			if unsub, berr := node.buildUnsubscribe(m.rt, scope); berr == nil {
				msgs = append(msgs, unsub)
			}
		}
	}

	scope.Fail(fmt.Errorf("%w: cancelled", ErrScopeTerminated))
	m.record(ctx, trace.EventScopeCancelled, contextID, "")

	m.mu.Lock()
	delete(m.scopes, contextID)
	m.mu.Unlock()
	return msgs, nil
}

// ActiveContexts возвращает количество живых scope'ов.
func (m *CompositeMethod) ActiveContexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scopes)
}

// HasContext проверяет существование scope'а.
func (m *CompositeMethod) HasContext(contextID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.scopes[contextID]
	return ok
}

// ContextStatus возвращает статус scope'а.
func (m *CompositeMethod) ContextStatus(contextID string) (ScopeStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope, ok := m.scopes[contextID]
	if !ok {
		return "", false
	}
	return scope.Status, true
}

// StaleContexts возвращает id активных scope'ов, не проявлявших
// активности с момента cutoff. Используется watchdog'ом.
func (m *CompositeMethod) StaleContexts(cutoff time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []string
	for id, scope := range m.scopes {
		if scope.IsActive() && scope.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

// scope возвращает живой scope по id.
func (m *CompositeMethod) scope(contextID string) (*Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope, ok := m.scopes[contextID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}
	return scope, nil
}

// settle — общая пост-обработка прогона графа для Start и Resume.
func (m *CompositeMethod) settle(ctx context.Context, scope *Scope, msgs []*wire.Message, runErr error) (*Invocation, error) {
	if runErr != nil {
		m.record(ctx, trace.EventScopeFailed, scope.ID, runErr.Error())
		m.DeleteContext(scope.ID)
		return &Invocation{Messages: msgs}, fmt.Errorf("%s: %w", m.Name, runErr)
	}

	if scope.Status == StatusCompleted {
		returns := make(map[string]any, len(m.Returns))
		for _, name := range m.Returns {
			if v, ok := scope.Local(name); ok {
				returns[name] = v
			}
		}
		m.record(ctx, trace.EventScopeCompleted, scope.ID, "")
		m.DeleteContext(scope.ID)
		return &Invocation{Done: true, Returns: returns, Messages: msgs}, nil
	}

	m.record(ctx, trace.EventScopeSuspended, scope.ID, string(scope.Status))
	return &Invocation{ContextID: scope.ID, Messages: msgs}, nil
}

func (m *CompositeMethod) record(ctx context.Context, kind trace.EventKind, scopeID, detail string) {
	m.rt.Sink.Record(ctx, trace.At(trace.Event{
		Kind:    kind,
		Machine: m.rt.Machine,
		ScopeID: scopeID,
		Method:  m.Name,
		Detail:  detail,
	}))
}
