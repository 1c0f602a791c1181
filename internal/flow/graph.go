package flow

import (
	"fmt"

	"github.com/shaiso/Machina/internal/wire"
)

// Graph — упорядоченная неизменяемая последовательность узлов.
//
// Граф строго последовательный: ни ветвлений, ни параллельных шагов
// внутри одного scope. Принадлежит ровно одному composite method.
type Graph struct {
	nodes []*Node
}

// NewGraph создаёт граф из последовательности узлов.
func NewGraph(nodes ...*Node) *Graph {
	return &Graph{nodes: nodes}
}

// Len возвращает количество узлов.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// NodeAt возвращает узел по номеру или nil вне диапазона.
func (g *Graph) NodeAt(pc uint) *Node {
	if int(pc) >= len(g.nodes) {
		return nil
	}
	return g.nodes[pc]
}

// Execute выполняет граф от текущего pc scope'а.
//
// pc продвигается только после успешного узла; приостановленный узел
// оставляет scope ровно там, где тот замер. Достижение конца графа
// переводит scope в COMPLETED. Ошибка узла фатальна: scope переводится
// в FAILED без продвижения pc, уже собранные сообщения возвращаются.
func (g *Graph) Execute(rt *Runtime, scope *Scope) ([]*wire.Message, error) {
	var emitted []*wire.Message

	for int(scope.PC) < len(g.nodes) {
		node := g.nodes[scope.PC]

		res, err := node.Execute(rt, scope)
		emitted = append(emitted, res.Messages...)
		if err != nil {
			scope.Fail(err)
			return emitted, fmt.Errorf("node %d (%s): %w", scope.PC, node.Kind, err)
		}
		if !res.OK {
			return emitted, nil
		}
		scope.PC++
	}

	scope.Status = StatusCompleted
	scope.Touch()
	return emitted, nil
}
