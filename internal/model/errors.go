package model

import "errors"

// Ошибки дерева модели.
var (
	// ErrNodeNotFound — узел по указанному пути не существует.
	ErrNodeNotFound = errors.New("node not found")

	// ErrWrongNodeType — узел существует, но имеет другой тип.
	ErrWrongNodeType = errors.New("wrong node type")

	// ErrDuplicateNode — узел с таким именем уже есть в папке.
	ErrDuplicateNode = errors.New("duplicate node name")

	// ErrNotInvokable — метод не имеет исполнителя.
	ErrNotInvokable = errors.New("method has no invoker")
)
