package flow

import (
	"fmt"
	"strings"

	"github.com/shaiso/Machina/internal/model"
	"github.com/shaiso/Machina/internal/trace"
	"github.com/shaiso/Machina/internal/wire"
)

// NodeKind — вид узла управляющего графа.
type NodeKind string

const (
	// KindReadVariable — чтение локальной переменной в locals.
	KindReadVariable NodeKind = "READ_VARIABLE"

	// KindWriteVariable — запись значения в локальную переменную.
	KindWriteVariable NodeKind = "WRITE_VARIABLE"

	// KindCallMethod — синхронный вызов локального метода.
	KindCallMethod NodeKind = "CALL_METHOD"

	// KindWaitCondition — ожидание условия на локальной переменной.
	KindWaitCondition NodeKind = "WAIT_CONDITION"

	// KindCallRemoteMethod — вызов метода на удалённой машине.
	KindCallRemoteMethod NodeKind = "CALL_REMOTE_METHOD"

	// KindReadRemoteVariable — чтение удалённой переменной.
	KindReadRemoteVariable NodeKind = "READ_REMOTE_VARIABLE"

	// KindWriteRemoteVariable — запись в удалённую переменную.
	KindWriteRemoteVariable NodeKind = "WRITE_REMOTE_VARIABLE"

	// KindWaitRemoteEvent — ожидание события на удалённой переменной.
	KindWaitRemoteEvent NodeKind = "WAIT_REMOTE_EVENT"
)

// IsRemote возвращает true для узлов, требующих обмена сообщениями.
func (k NodeKind) IsRemote() bool {
	switch k {
	case KindCallRemoteMethod, KindReadRemoteVariable, KindWriteRemoteVariable, KindWaitRemoteEvent:
		return true
	default:
		return false
	}
}

// Runtime — окружение выполнения графа: дерево модели этой машины,
// её идентификатор, генератор id и журнал. Передаётся явно, чтобы
// узлы оставались неизменяемыми после конструирования.
type Runtime struct {
	// Machine — идентификатор этой машины (sender исходящих запросов).
	Machine string

	// Tree — дерево модели этой машины.
	Tree *model.Tree

	// IDs — генератор идентификаторов сообщений и scope'ов.
	IDs IDGenerator

	// Sink — журнал событий движка.
	Sink trace.Sink
}

// Result — результат выполнения одного узла.
type Result struct {
	// OK — узел завершён, pc продвигается.
	OK bool

	// Messages — сообщения, которые должны уйти в транспорт.
	Messages []*wire.Message
}

// Node — один шаг управляющего графа.
//
// Поля заполняются по виду узла и неизменны после конструирования,
// кроме лениво привязываемой статической ссылки на узел модели.
type Node struct {
	// Kind — вид узла.
	Kind NodeKind

	// Path — путь целевого узла. Может содержать шаблоны — тогда
	// ссылка динамическая и разрешается на каждое выполнение.
	Path string

	// StoreAs — имя local для сохранения результата
	// (по умолчанию — имя целевого узла).
	StoreAs string

	// Value — записываемое значение (литерал или шаблон).
	Value any

	// Args, Kwargs — аргументы вызова метода.
	Args   []any
	Kwargs map[string]any

	// Op, RHS — оператор и правая часть условия ожидания.
	Op  CompareOp
	RHS any

	// RemoteID — идентификатор удалённой машины (для удалённых узлов).
	RemoteID string

	// Лениво привязанные статические ссылки.
	staticVar    *model.Variable
	staticMethod *model.Method
}

// NewReadVariable создаёт узел чтения переменной.
func NewReadVariable(path, storeAs string) *Node {
	return &Node{Kind: KindReadVariable, Path: path, StoreAs: storeAs}
}

// NewWriteVariable создаёт узел записи переменной.
func NewWriteVariable(path string, value any) *Node {
	return &Node{Kind: KindWriteVariable, Path: path, Value: value}
}

// NewCallMethod создаёт узел вызова локального метода.
func NewCallMethod(path string, args []any, kwargs map[string]any) *Node {
	return &Node{Kind: KindCallMethod, Path: path, Args: args, Kwargs: kwargs}
}

// NewWaitCondition создаёт узел ожидания условия.
func NewWaitCondition(path string, op CompareOp, rhs any) *Node {
	return &Node{Kind: KindWaitCondition, Path: path, Op: op, RHS: rhs}
}

// NewCallRemoteMethod создаёт узел вызова удалённого метода.
func NewCallRemoteMethod(remoteID, path string, args []any, kwargs map[string]any) *Node {
	return &Node{Kind: KindCallRemoteMethod, RemoteID: remoteID, Path: path, Args: args, Kwargs: kwargs}
}

// NewReadRemoteVariable создаёт узел чтения удалённой переменной.
func NewReadRemoteVariable(remoteID, path, storeAs string) *Node {
	return &Node{Kind: KindReadRemoteVariable, RemoteID: remoteID, Path: path, StoreAs: storeAs}
}

// NewWriteRemoteVariable создаёт узел записи удалённой переменной.
func NewWriteRemoteVariable(remoteID, path string, value any) *Node {
	return &Node{Kind: KindWriteRemoteVariable, RemoteID: remoteID, Path: path, Value: value}
}

// NewWaitRemoteEvent создаёт узел ожидания удалённого события.
func NewWaitRemoteEvent(remoteID, path string, op CompareOp, rhs any) *Node {
	return &Node{Kind: KindWaitRemoteEvent, RemoteID: remoteID, Path: path, Op: op, RHS: rhs}
}

// Execute выполняет узел под указанным scope.
//
// Возвращаемая ошибка фатальна для scope: исполнитель графа переведёт
// его в FAILED, не продвигая pc. Result.OK=false без ошибки означает
// приостановку (условие не выполнено или ожидается ответ).
func (n *Node) Execute(rt *Runtime, scope *Scope) (Result, error) {
	switch n.Kind {
	case KindReadVariable:
		return n.executeRead(rt, scope)
	case KindWriteVariable:
		return n.executeWrite(rt, scope)
	case KindCallMethod:
		return n.executeCall(rt, scope)
	case KindWaitCondition:
		return n.executeWait(rt, scope)
	case KindCallRemoteMethod, KindReadRemoteVariable, KindWriteRemoteVariable, KindWaitRemoteEvent:
		return n.executeRemote(rt, scope)
	default:
		return Result{}, fmt.Errorf("unknown node kind %q", n.Kind)
	}
}

// executeRead читает переменную в locals.
func (n *Node) executeRead(rt *Runtime, scope *Scope) (Result, error) {
	v, err := n.resolveVariable(rt, scope)
	if err != nil {
		return Result{}, err
	}
	scope.SetLocal(n.storeName(v.Name()), v.Read())
	return Result{OK: true}, nil
}

// executeWrite записывает значение в переменную.
// Отклонение записи переменной — забота слоя переменных, не узла:
// узел завершается успешно в любом случае.
func (n *Node) executeWrite(rt *Runtime, scope *Scope) (Result, error) {
	v, err := n.resolveVariable(rt, scope)
	if err != nil {
		return Result{}, err
	}
	value, err := ResolveValue(n.Value, scope)
	if err != nil {
		return Result{}, err
	}
	v.Write(value)
	return Result{OK: true}, nil
}

// executeCall синхронно вызывает локальный метод и переносит
// именованные возвращаемые значения в locals.
func (n *Node) executeCall(rt *Runtime, scope *Scope) (Result, error) {
	m, err := n.resolveMethod(rt, scope)
	if err != nil {
		return Result{}, err
	}

	args, kwargs, err := n.resolveArguments(scope)
	if err != nil {
		return Result{}, err
	}

	returns, err := m.Invoke(args, kwargs)
	if err != nil {
		return Result{}, fmt.Errorf("invoke %s: %w", m.Path(), err)
	}
	scope.MergeLocals(returns)
	return Result{OK: true}, nil
}

// executeWait проверяет условие на локальной переменной.
// Невыполненное условие — не ошибка, а сигнал приостановки: scope
// подписывается на переменную и будет возобновлён уведомлением о записи.
func (n *Node) executeWait(rt *Runtime, scope *Scope) (Result, error) {
	v, err := n.resolveVariable(rt, scope)
	if err != nil {
		return Result{}, err
	}
	rhs, err := ResolveValue(n.RHS, scope)
	if err != nil {
		return Result{}, err
	}

	met, err := Compare(v.Read(), n.Op, rhs)
	if err != nil {
		return Result{}, err
	}

	if met {
		if v.IsSubscribed(scope.ID) {
			v.Unsubscribe(scope.ID)
		}
		scope.Status = StatusRunning
		scope.Touch()
		return Result{OK: true}, nil
	}

	// Подписка идемпотентна: повторное выполнение не плодит дубликатов.
	v.Subscribe(scope.ID)
	scope.Status = StatusWaitingForEvent
	scope.Touch()
	return Result{OK: false}, nil
}

// resolveVariable возвращает целевую переменную.
// Статическая ссылка привязывается один раз, динамическая (с шаблоном
// в пути) разрешается на каждое выполнение.
func (n *Node) resolveVariable(rt *Runtime, scope *Scope) (*model.Variable, error) {
	if HasTemplate(n.Path) {
		path, err := ResolvePath(n.Path, scope)
		if err != nil {
			return nil, err
		}
		return rt.Tree.ResolveVariable(path)
	}

	if n.staticVar == nil {
		v, err := rt.Tree.ResolveVariable(n.Path)
		if err != nil {
			return nil, err
		}
		n.staticVar = v
	}
	return n.staticVar, nil
}

// resolveMethod возвращает целевой метод (аналогично resolveVariable).
func (n *Node) resolveMethod(rt *Runtime, scope *Scope) (*model.Method, error) {
	if HasTemplate(n.Path) {
		path, err := ResolvePath(n.Path, scope)
		if err != nil {
			return nil, err
		}
		return rt.Tree.ResolveMethod(path)
	}

	if n.staticMethod == nil {
		m, err := rt.Tree.ResolveMethod(n.Path)
		if err != nil {
			return nil, err
		}
		n.staticMethod = m
	}
	return n.staticMethod, nil
}

// resolveArguments разрешает шаблоны в аргументах вызова.
func (n *Node) resolveArguments(scope *Scope) ([]any, map[string]any, error) {
	args := make([]any, len(n.Args))
	for i, a := range n.Args {
		resolved, err := ResolveValue(a, scope)
		if err != nil {
			return nil, nil, err
		}
		args[i] = resolved
	}

	kwargs := make(map[string]any, len(n.Kwargs))
	for k, a := range n.Kwargs {
		resolved, err := ResolveValue(a, scope)
		if err != nil {
			return nil, nil, err
		}
		kwargs[k] = resolved
	}
	return args, kwargs, nil
}

// storeName возвращает имя local для сохранения результата.
func (n *Node) storeName(nodeName string) string {
	if n.StoreAs != "" {
		return n.StoreAs
	}
	return nodeName
}

// remotePathName возвращает имя узла из удалённого пути.
func remotePathName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
