package flow

import (
	"maps"
	"time"
)

// ScopeStatus — статус выполнения scope.
//
// Жизненный цикл:
//
//	READY → RUNNING → COMPLETED
//	                ↘ FAILED
//	        RUNNING ⇄ WAITING_FOR_EVENT (условие ожидания не выполнено)
//	        RUNNING → WAITING_FOR_RESPONSE → RESPONSE_RECEIVED → RUNNING
type ScopeStatus string

const (
	// StatusReady — scope создан, выполнение ещё не начиналось.
	StatusReady ScopeStatus = "READY"

	// StatusRunning — граф выполняется.
	StatusRunning ScopeStatus = "RUNNING"

	// StatusWaitingForEvent — scope ждёт записи в переменную,
	// на которую подписан (условие ожидания не выполнено).
	StatusWaitingForEvent ScopeStatus = "WAITING_FOR_EVENT"

	// StatusWaitingForResponse — scope ждёт ответа на удалённый запрос.
	StatusWaitingForResponse ScopeStatus = "WAITING_FOR_RESPONSE"

	// StatusResponseReceived — ответ принят, узел продолжит при
	// следующем выполнении.
	StatusResponseReceived ScopeStatus = "RESPONSE_RECEIVED"

	// StatusCompleted — граф выполнен до конца.
	StatusCompleted ScopeStatus = "COMPLETED"

	// StatusFailed — выполнение прервано ошибкой или отменой.
	StatusFailed ScopeStatus = "FAILED"
)

// IsTerminal возвращает true для финальных статусов.
func (s ScopeStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Scope — состояние одного вызова composite method.
//
// Scope создаётся при Start, мутируется только исполнителем графа и
// обработчиками ответов/уведомлений и удаляется владельцем после
// наблюдения терминального статуса. Инвариант: ActiveRequest заполнен
// только пока Status == WAITING_FOR_RESPONSE; на scope не бывает более
// одного незакрытого запроса.
//
// Scope не защищён мьютексом: доступ к нему строго однописательный.
type Scope struct {
	// ID — непрозрачный, глобально уникальный id вызова.
	// Используется как correlation id исходящих запросов и как
	// id подписчика локальных переменных.
	ID string

	// Locals — локальные значения scope'а.
	Locals map[string]any

	// PC — номер текущего узла графа.
	PC uint

	// Status — текущий статус.
	Status ScopeStatus

	// ActiveRequest — correlation id незакрытого удалённого запроса.
	// Пустая строка — запроса нет.
	ActiveRequest string

	// LastActivity — время последнего перехода; по нему watchdog
	// находит протухшие scope'ы.
	LastActivity time.Time

	// Err — причина, по которой scope оказался в FAILED.
	Err error
}

// NewScope создаёт scope со статусом READY и скопированными locals.
func NewScope(id string, kwargs map[string]any) *Scope {
	locals := make(map[string]any, len(kwargs))
	maps.Copy(locals, kwargs)
	return &Scope{
		ID:           id,
		Locals:       locals,
		Status:       StatusReady,
		LastActivity: time.Now(),
	}
}

// Touch обновляет время последней активности.
func (s *Scope) Touch() {
	s.LastActivity = time.Now()
}

// Local возвращает значение local по имени.
func (s *Scope) Local(name string) (any, bool) {
	v, ok := s.Locals[name]
	return v, ok
}

// SetLocal записывает значение local.
func (s *Scope) SetLocal(name string, value any) {
	s.Locals[name] = value
}

// MergeLocals переносит значения в locals scope'а.
func (s *Scope) MergeLocals(values map[string]any) {
	maps.Copy(s.Locals, values)
}

// IsActive возвращает true, пока scope не достиг терминального статуса.
func (s *Scope) IsActive() bool {
	return !s.Status.IsTerminal()
}

// subscribedRemotely возвращает true, если запрос подписки уже ушёл
// удалённой машине, а отписка ещё не отправлялась.
func (s *Scope) subscribedRemotely() bool {
	return s.Status == StatusWaitingForResponse || s.Status == StatusResponseReceived
}

// Fail переводит scope в FAILED с причиной.
func (s *Scope) Fail(err error) {
	s.Status = StatusFailed
	s.Err = err
	s.Touch()
}
