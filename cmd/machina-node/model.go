package main

import (
	"fmt"

	"github.com/shaiso/Machina/internal/flow"
	"github.com/shaiso/Machina/internal/model"
	"github.com/shaiso/Machina/internal/protocol"
)

// buildModel собирает дерево модели узла.
//
// Модель демонстрационная: резервуар с уровнем, клапаном и уставкой.
// Промышленный узел собирает здесь своё дерево тем же способом.
func buildModel() (*model.Tree, error) {
	tree := model.NewTree()

	if _, err := tree.AddFolder("", "tank"); err != nil {
		return nil, err
	}

	levelValidator := func(value any) bool {
		level, ok := value.(float64)
		return ok && level >= 0 && level <= 100
	}
	if _, err := tree.AddVariable("tank", "level", float64(0), levelValidator); err != nil {
		return nil, err
	}
	if _, err := tree.AddVariable("tank", "valve", false, nil); err != nil {
		return nil, err
	}
	if _, err := tree.AddVariable("tank", "setpoint", float64(80), nil); err != nil {
		return nil, err
	}

	// Обычный метод: мгновенный сброс резервуара.
	drain := func(args []any, kwargs map[string]any) (map[string]any, error) {
		level, err := tree.ResolveVariable("tank/level")
		if err != nil {
			return nil, err
		}
		valve, err := tree.ResolveVariable("tank/valve")
		if err != nil {
			return nil, err
		}
		valve.Write(false)
		if !level.Write(float64(0)) {
			return nil, fmt.Errorf("level rejected reset")
		}
		return map[string]any{"level": float64(0)}, nil
	}
	if _, err := tree.AddMethod("tank", "drain", drain); err != nil {
		return nil, err
	}

	return tree, nil
}

// registerMethods регистрирует composite methods узла.
func registerMethods(mgr *protocol.Manager) error {
	rt := mgr.Runtime()

	// tank/fill: открыть клапан, дождаться уровня не ниже уставки,
	// закрыть клапан, вернуть фактический уровень.
	fill := flow.NewCompositeMethod(
		"tank-fill",
		"tank/fill",
		[]flow.ParamSpec{{Name: "target", Default: float64(80)}},
		[]string{"level"},
		flow.NewGraph(
			flow.NewWriteVariable("tank/setpoint", "$target"),
			flow.NewWriteVariable("tank/valve", true),
			flow.NewWaitCondition("tank/level", flow.OpGE, "$target"),
			flow.NewWriteVariable("tank/valve", false),
			flow.NewReadVariable("tank/level", "level"),
		),
		rt,
	)

	return mgr.RegisterMethod("tank/fill", fill)
}
