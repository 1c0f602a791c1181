package model

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Node — узел дерева модели.
type Node interface {
	// Name — имя узла внутри родительской папки.
	Name() string

	// Path — полный путь от корня, сегменты разделены "/".
	Path() string
}

// base — общая часть всех узлов.
type base struct {
	name string
	path string
}

func (b *base) Name() string { return b.name }
func (b *base) Path() string { return b.path }

// Folder — папка, содержащая дочерние узлы.
type Folder struct {
	base
	children map[string]Node
	order    []string
}

// Child возвращает дочерний узел по имени.
func (f *Folder) Child(name string) (Node, bool) {
	n, ok := f.children[name]
	return n, ok
}

// Children возвращает дочерние узлы в порядке добавления.
func (f *Folder) Children() []Node {
	nodes := make([]Node, 0, len(f.order))
	for _, name := range f.order {
		nodes = append(nodes, f.children[name])
	}
	return nodes
}

func (f *Folder) add(n Node) error {
	if _, exists := f.children[n.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.Name())
	}
	f.children[n.Name()] = n
	f.order = append(f.order, n.Name())
	return nil
}

// Validator проверяет записываемое значение.
// Возвращает false, если запись должна быть отклонена.
type Validator func(value any) bool

// Variable — переменная с текущим значением и подписчиками.
type Variable struct {
	base
	mu          sync.RWMutex
	value       any
	validator   Validator
	subscribers []string
	tree        *Tree
}

// Read возвращает текущее значение переменной.
func (v *Variable) Read() any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Write записывает значение и синхронно уведомляет подписчиков.
// Возвращает false, если валидатор отклонил значение; подписчики
// в этом случае не уведомляются.
func (v *Variable) Write(value any) bool {
	v.mu.Lock()
	if v.validator != nil && !v.validator(value) {
		v.mu.Unlock()
		return false
	}
	v.value = value
	subs := slices.Clone(v.subscribers)
	v.mu.Unlock()

	// Уведомления вне мьютекса: наблюдатель может снять подписку.
	if v.tree != nil && v.tree.observer != nil {
		for _, id := range subs {
			v.tree.observer(id, v, value)
		}
	}
	return true
}

// Subscribe добавляет подписчика. Повторная подписка того же id
// не создаёт дубликата.
func (v *Variable) Subscribe(subscriberID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if slices.Contains(v.subscribers, subscriberID) {
		return
	}
	v.subscribers = append(v.subscribers, subscriberID)
}

// Unsubscribe удаляет подписчика. Отсутствующий id игнорируется.
func (v *Variable) Unsubscribe(subscriberID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subscribers = slices.DeleteFunc(v.subscribers, func(id string) bool {
		return id == subscriberID
	})
}

// Subscribers возвращает текущих подписчиков в порядке подписки.
func (v *Variable) Subscribers() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.subscribers)
}

// IsSubscribed проверяет наличие подписчика.
func (v *Variable) IsSubscribed(subscriberID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Contains(v.subscribers, subscriberID)
}

// Invoker — функция, выполняющая метод узла.
type Invoker func(args []any, kwargs map[string]any) (map[string]any, error)

// Method — вызываемый метод дерева модели.
type Method struct {
	base
	invoker Invoker
}

// Invoke выполняет метод с позиционными и именованными аргументами.
// Возвращает именованные возвращаемые значения.
func (m *Method) Invoke(args []any, kwargs map[string]any) (map[string]any, error) {
	if m.invoker == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInvokable, m.path)
	}
	return m.invoker(args, kwargs)
}

// WriteObserver вызывается синхронно после успешной записи
// для каждого текущего подписчика переменной.
type WriteObserver func(subscriberID string, v *Variable, value any)

// Tree — дерево модели машины.
type Tree struct {
	root     *Folder
	observer WriteObserver
}

// NewTree создаёт дерево с пустой корневой папкой.
func NewTree() *Tree {
	return &Tree{
		root: &Folder{
			base:     base{name: "", path: ""},
			children: make(map[string]Node),
		},
	}
}

// SetObserver устанавливает наблюдателя записей.
// Вызывается один раз при сборке системы, до начала записей.
func (t *Tree) SetObserver(obs WriteObserver) {
	t.observer = obs
}

// Root возвращает корневую папку.
func (t *Tree) Root() *Folder { return t.root }

// AddFolder создаёт папку по указанному пути родителя.
func (t *Tree) AddFolder(parentPath, name string) (*Folder, error) {
	parent, err := t.folder(parentPath)
	if err != nil {
		return nil, err
	}
	f := &Folder{
		base:     base{name: name, path: join(parent.path, name)},
		children: make(map[string]Node),
	}
	if err := parent.add(f); err != nil {
		return nil, err
	}
	return f, nil
}

// AddVariable создаёт переменную с начальным значением.
// validator может быть nil — тогда принимается любое значение.
func (t *Tree) AddVariable(parentPath, name string, initial any, validator Validator) (*Variable, error) {
	parent, err := t.folder(parentPath)
	if err != nil {
		return nil, err
	}
	v := &Variable{
		base:      base{name: name, path: join(parent.path, name)},
		value:     initial,
		validator: validator,
		tree:      t,
	}
	if err := parent.add(v); err != nil {
		return nil, err
	}
	return v, nil
}

// AddMethod создаёт метод с указанным исполнителем.
func (t *Tree) AddMethod(parentPath, name string, invoker Invoker) (*Method, error) {
	parent, err := t.folder(parentPath)
	if err != nil {
		return nil, err
	}
	m := &Method{
		base:    base{name: name, path: join(parent.path, name)},
		invoker: invoker,
	}
	if err := parent.add(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Resolve находит узел по полному пути.
func (t *Tree) Resolve(path string) (Node, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return t.root, nil
	}

	var current Node = t.root
	for _, segment := range strings.Split(path, "/") {
		folder, ok := current.(*Folder)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, path)
		}
		child, ok := folder.Child(segment)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, path)
		}
		current = child
	}
	return current, nil
}

// ResolveVariable находит переменную по пути.
func (t *Tree) ResolveVariable(path string) (*Variable, error) {
	n, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	v, ok := n.(*Variable)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a variable", ErrWrongNodeType, path)
	}
	return v, nil
}

// ResolveMethod находит метод по пути.
func (t *Tree) ResolveMethod(path string) (*Method, error) {
	n, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	m, ok := n.(*Method)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a method", ErrWrongNodeType, path)
	}
	return m, nil
}

// folder находит папку по пути.
func (t *Tree) folder(path string) (*Folder, error) {
	n, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	f, ok := n.(*Folder)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a folder", ErrWrongNodeType, path)
	}
	return f, nil
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
