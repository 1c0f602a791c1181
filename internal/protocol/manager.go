package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Machina/internal/flow"
	"github.com/shaiso/Machina/internal/model"
	"github.com/shaiso/Machina/internal/telemetry"
	"github.com/shaiso/Machina/internal/trace"
	"github.com/shaiso/Machina/internal/wire"
)

// runningEntry — запись реестра приостановленных вызовов:
// composite method и исходный запрос, породивший вызов.
//
// Исходный запрос хранится на запись: ответ COMPLETED обязан быть
// адресован отправителю именно этого запроса, найденному по scope id,
// а не кэшу от другого вызова.
type runningEntry struct {
	method  *flow.CompositeMethod
	request *wire.Message
}

// remoteSub — подписка удалённого пира на локальную переменную.
type remoteSub struct {
	peer     string
	node     string
	variable *model.Variable
}

// Config — конфигурация Manager.
type Config struct {
	// Machine — идентификатор этой машины.
	Machine string

	// Tree — дерево модели этой машины.
	Tree *model.Tree

	// IDs — генератор идентификаторов (default: UUID).
	IDs flow.IDGenerator

	// Sink — журнал событий (default: NopSink).
	Sink trace.Sink

	// Logger — логгер (default: slog.Default()).
	Logger *slog.Logger
}

// Manager — протокольный менеджер машины.
//
// Единственный владелец реестра приостановленных вызовов: записи
// создаются при приостановке вызова, читаются на каждом входящем
// сообщении и каждом уведомлении о записи переменной, удаляются при
// завершении вызова. Весь исходящий трафик накапливается во внутренней
// очереди и забирается вызывающей стороной через Drain (или как
// возвращаемое значение HandleInbound).
type Manager struct {
	machine string
	tree    *model.Tree
	rt      *flow.Runtime
	ids     flow.IDGenerator
	sink    trace.Sink
	logger  *slog.Logger

	mu         sync.Mutex
	methods    map[string]*flow.CompositeMethod
	methodList []*flow.CompositeMethod
	running    map[string]runningEntry
	peers      map[string]bool
	remoteSubs map[string]remoteSub
	pending    []*wire.Message
}

// New создаёт Manager и подключает его к дереву модели как
// наблюдателя записей.
func New(cfg Config) *Manager {
	ids := cfg.IDs
	if ids == nil {
		ids = flow.UUIDs{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = trace.NopSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		machine:    cfg.Machine,
		tree:       cfg.Tree,
		ids:        ids,
		sink:       sink,
		logger:     telemetry.WithMachineID(logger, cfg.Machine),
		methods:    make(map[string]*flow.CompositeMethod),
		running:    make(map[string]runningEntry),
		peers:      make(map[string]bool),
		remoteSubs: make(map[string]remoteSub),
	}
	m.rt = &flow.Runtime{
		Machine: cfg.Machine,
		Tree:    cfg.Tree,
		IDs:     ids,
		Sink:    sink,
	}
	cfg.Tree.SetObserver(m.OnVariableWrite)
	return m
}

// Runtime возвращает окружение выполнения для сборки composite methods.
func (m *Manager) Runtime() *flow.Runtime { return m.rt }

// Machine возвращает идентификатор этой машины.
func (m *Manager) Machine() string { return m.machine }

// RegisterMethod регистрирует composite method под путём узла модели.
func (m *Manager) RegisterMethod(nodePath string, method *flow.CompositeMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.methods[nodePath]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, nodePath)
	}
	m.methods[nodePath] = method
	m.methodList = append(m.methodList, method)
	return nil
}

// HandleInbound обрабатывает входящее сообщение и возвращает весь
// порождённый исходящий трафик: ответы, запросы от возобновлённых
// графов и UPDATE для подписчиков-пиров.
func (m *Manager) HandleInbound(ctx context.Context, msg *wire.Message) []*wire.Message {
	m.sink.Record(ctx, trace.At(trace.Event{
		Kind:    trace.EventMessageIn,
		Machine: m.machine,
		ScopeID: msg.CorrelationID,
		Detail:  string(msg.Header.Namespace) + "/" + msg.Header.Name,
	}))

	outcome := "ok"
	if !wire.CurrentVersion.Compatible(msg.Header.Version) {
		// Ошибку версии получает только запрос: ответ с ошибкой на чужой
		// ответ породил бы встречный ответ на каждой стороне без конца.
		if msg.IsRequest() {
			m.emit(wire.NewErrorResponse(msg, wire.CodeVersionNotSupported,
				fmt.Sprintf("version %s not supported", msg.Header.Version), m.ids.NewID()))
		}
		outcome = "error"
	} else if entry, ok := m.runningEntryFor(msg.CorrelationID); ok {
		m.handleRunning(ctx, entry, msg)
	} else if !msg.IsRequest() {
		// Ответ без записи в реестре: вызов уже завершён или отменён.
		// Штатный случай — поздний ack отписки или ответ снятому по
		// таймауту scope'у. Отвечать некому; в обработчики запросов
		// такой трафик не попадает.
		m.logger.Debug("stray response dropped",
			"correlation_id", msg.CorrelationID,
			"sender", msg.Sender,
			"name", string(msg.Header.Namespace)+"/"+msg.Header.Name)
		outcome = "dropped"
	} else {
		switch msg.Header.Namespace {
		case wire.NamespaceProtocol:
			m.handleProtocol(msg)
		case wire.NamespaceVariable:
			m.handleVariable(ctx, msg)
		case wire.NamespaceMethod:
			m.handleMethod(ctx, msg)
		case wire.NamespaceNode:
			m.emit(wire.NewErrorResponse(msg, wire.CodeUnsupportedOperation,
				"NODE operations are not supported", m.ids.NewID()))
			outcome = "error"
		default:
			m.emit(wire.NewErrorResponse(msg, wire.CodeBadRequest,
				fmt.Sprintf("unknown namespace %q", msg.Header.Namespace), m.ids.NewID()))
			outcome = "error"
		}
	}

	telemetry.MessagesIn.WithLabelValues(string(msg.Header.Namespace), outcome).Inc()
	m.updateGauges()
	return m.Drain()
}

// Drain забирает накопленный исходящий трафик.
// Используется после локальных записей и возобновлений, происходящих
// вне HandleInbound.
func (m *Manager) Drain() []*wire.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.pending
	m.pending = nil
	return out
}

// ReapStale отменяет scope'ы, не проявлявшие активности дольше ttl.
//
// Для вызова из реестра отправителю исходного запроса уходит ERROR:
// его вызов уже никогда не завершится. Возвращает количество
// отменённых scope'ов; порождённые сообщения забираются через Drain.
func (m *Manager) ReapStale(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	methods := make([]*flow.CompositeMethod, len(m.methodList))
	copy(methods, m.methodList)
	m.mu.Unlock()

	reaped := 0
	for _, method := range methods {
		for _, id := range method.StaleContexts(cutoff) {
			if entry, ok := m.runningEntryFor(id); ok {
				m.removeRunning(id)
				m.emit(wire.NewErrorResponse(entry.request, wire.CodeInternal,
					"execution context reaped after inactivity timeout", m.ids.NewID()))
			}
			msgs, err := method.Cancel(ctx, id)
			if err != nil {
				continue
			}
			m.emitAll(msgs)
			m.logger.Warn("stale scope reaped", "scope_id", id, "method", method.Name)
			telemetry.ReapedScopes.Inc()
			reaped++
		}
	}

	m.updateGauges()
	return reaped
}

// OnVariableWrite — наблюдатель записей дерева модели.
//
// Вызывается синхронно после успешной записи для каждого подписчика.
// Подписчик, равный scope id работающего вызова, возобновляется
// вместо отправки UPDATE; подписка пира порождает UPDATE с
// correlation id, равным subscriber id.
func (m *Manager) OnVariableWrite(subscriberID string, v *model.Variable, value any) {
	ctx := context.Background()

	// Scope из реестра приостановленных вызовов.
	if entry, ok := m.runningEntryFor(subscriberID); ok {
		m.resumeWaiting(ctx, entry.method, subscriberID, true)
		return
	}

	// Локально запущенный scope.
	m.mu.Lock()
	methods := make([]*flow.CompositeMethod, len(m.methodList))
	copy(methods, m.methodList)
	m.mu.Unlock()

	for _, method := range methods {
		if _, ok := method.ContextStatus(subscriberID); ok {
			m.resumeWaiting(ctx, method, subscriberID, false)
			return
		}
	}

	// Подписка удалённого пира.
	m.mu.Lock()
	sub, ok := m.remoteSubs[subscriberID]
	m.mu.Unlock()
	if !ok {
		return
	}

	m.emit(&wire.Message{
		Sender: m.machine,
		Target: sub.peer,
		Header: wire.Header{
			Type:      wire.TypeResponse,
			Version:   wire.CurrentVersion,
			Namespace: wire.NamespaceVariable,
			Name:      wire.VariableUpdate,
			Timestamp: time.Now(),
		},
		Payload:       wire.Payload{Variable: &wire.VariablePayload{Node: sub.node, Value: value}},
		Identifier:    m.ids.NewID(),
		CorrelationID: subscriberID,
	})
}

// resumeWaiting возобновляет scope, ждущий локального события.
//
// Возобновление происходит только из WAITING_FOR_EVENT: scope,
// выполняющийся прямо сейчас, не возобновляется повторно — этим
// исключается одновременная мутация одного scope'а по построению.
func (m *Manager) resumeWaiting(ctx context.Context, method *flow.CompositeMethod, scopeID string, registered bool) {
	status, ok := method.ContextStatus(scopeID)
	if !ok || status != flow.StatusWaitingForEvent {
		return
	}

	inv, err := method.Resume(ctx, scopeID)
	if !registered {
		if inv != nil {
			m.emitAll(inv.Messages)
		}
		if err != nil {
			m.logger.Warn("local scope failed on resume", "scope_id", scopeID, "error", err)
		}
		return
	}

	entry, ok := m.runningEntryFor(scopeID)
	if !ok {
		return
	}
	m.finishRunning(scopeID, entry, inv, err)
}

// runningEntryFor возвращает запись реестра по correlation id.
func (m *Manager) runningEntryFor(correlationID string) (runningEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.running[correlationID]
	return entry, ok
}

// addRunning создаёт запись реестра для приостановленного вызова.
func (m *Manager) addRunning(contextID string, method *flow.CompositeMethod, request *wire.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[contextID] = runningEntry{method: method, request: request}
}

// removeRunning удаляет запись реестра.
func (m *Manager) removeRunning(contextID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, contextID)
}

// RunningCount возвращает размер реестра приостановленных вызовов.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// emit ставит сообщение в исходящую очередь.
func (m *Manager) emit(msg *wire.Message) {
	m.sink.Record(context.Background(), trace.At(trace.Event{
		Kind:    trace.EventMessageOut,
		Machine: m.machine,
		ScopeID: msg.CorrelationID,
		Detail:  string(msg.Header.Namespace) + "/" + msg.Header.Name,
	}))
	telemetry.MessagesOut.WithLabelValues(string(msg.Header.Type)).Inc()

	m.mu.Lock()
	m.pending = append(m.pending, msg)
	m.mu.Unlock()
}

// emitAll ставит несколько сообщений в исходящую очередь.
func (m *Manager) emitAll(msgs []*wire.Message) {
	for _, msg := range msgs {
		m.emit(msg)
	}
}

// updateGauges обновляет метрики активных scope'ов и реестра.
func (m *Manager) updateGauges() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, method := range m.methodList {
		telemetry.ActiveScopes.WithLabelValues(method.Name).Set(float64(method.ActiveContexts()))
	}
	telemetry.RunningRegistrySize.Set(float64(len(m.running)))
}
