package flow

import "errors"

// Ошибки движка.
var (
	// ErrContextNotFound — scope с указанным context id не существует
	// или уже завершён и удалён.
	ErrContextNotFound = errors.New("execution context not found")

	// ErrUnresolvedTemplate — шаблон ссылается на отсутствующий local.
	ErrUnresolvedTemplate = errors.New("template references unknown local")

	// ErrIncomparable — значения нельзя сравнить выбранным оператором.
	ErrIncomparable = errors.New("values are not comparable")

	// ErrBadResponse — ответ структурно не соответствует ожидаемому
	// для текущего удалённого узла.
	ErrBadResponse = errors.New("bad response for pending request")

	// ErrRemoteFailed — удалённая машина ответила сообщением ERROR.
	ErrRemoteFailed = errors.New("remote operation failed")

	// ErrNotWaiting — узел в текущей позиции графа не является
	// удалённым узлом, сообщение адресовать некому.
	ErrNotWaiting = errors.New("scope is not waiting on a remote node")

	// ErrScopeTerminated — scope уже в терминальном статусе.
	ErrScopeTerminated = errors.New("scope already terminated")
)
