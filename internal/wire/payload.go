package wire

// PayloadKind — вид полезной нагрузки.
type PayloadKind string

const (
	PayloadNone         PayloadKind = "NONE"
	PayloadVariable     PayloadKind = "VARIABLE"
	PayloadMethod       PayloadKind = "METHOD"
	PayloadSubscription PayloadKind = "SUBSCRIPTION"
	PayloadError        PayloadKind = "ERROR"
)

// Payload — закрытое объединение полезных нагрузок.
//
// Заполнен ровно один вариант (или ни одного для NODE/PROTOCOL
// сообщений без данных). Вид определяется через Kind, ветвление по
// вариантам — исчерпывающим switch, без рефлексии и утиной типизации.
type Payload struct {
	// Variable — значение переменной (READ/WRITE/UPDATE).
	Variable *VariablePayload `json:"variable,omitempty"`

	// Method — аргументы и возвращаемые значения метода (INVOKE/STARTED/COMPLETED).
	Method *MethodPayload `json:"method,omitempty"`

	// Subscription — параметры подписки (SUBSCRIBE/UNSUBSCRIBE).
	Subscription *SubscriptionPayload `json:"subscription,omitempty"`

	// Error — код и описание ошибки (сообщения типа ERROR).
	Error *ErrorPayload `json:"error,omitempty"`
}

// Kind возвращает вид заполненного варианта.
func (p Payload) Kind() PayloadKind {
	switch {
	case p.Error != nil:
		return PayloadError
	case p.Variable != nil:
		return PayloadVariable
	case p.Method != nil:
		return PayloadMethod
	case p.Subscription != nil:
		return PayloadSubscription
	default:
		return PayloadNone
	}
}

// VariablePayload — нагрузка операций над переменными.
type VariablePayload struct {
	// Node — путь к переменной в дереве модели получателя.
	Node string `json:"node"`

	// Value — значение: записываемое (WRITE), прочитанное (ответ на READ)
	// или новое значение при уведомлении (UPDATE).
	Value any `json:"value,omitempty"`
}

// MethodPayload — нагрузка вызова метода.
type MethodPayload struct {
	// Node — путь к методу в дереве модели получателя.
	Node string `json:"node"`

	// Args — позиционные аргументы.
	Args []any `json:"args,omitempty"`

	// Kwargs — именованные аргументы.
	Kwargs map[string]any `json:"kwargs,omitempty"`

	// Returns — возвращаемые значения (в ответах COMPLETED).
	// Для ответов STARTED содержит "@context_id".
	Returns map[string]any `json:"returns,omitempty"`
}

// SubscriptionPayload — нагрузка подписки на переменную.
type SubscriptionPayload struct {
	// Node — путь к переменной.
	Node string `json:"node"`

	// SubscriberID — идентификатор подписчика.
	// Для подписок от удалённых scope'ов равен correlation_id запроса.
	SubscriberID string `json:"subscriber_id"`
}

// ErrorPayload — нагрузка сообщения об ошибке.
type ErrorPayload struct {
	// Code — машинно-читаемый код ошибки.
	Code ErrorCode `json:"code"`

	// Message — человеко-читаемое описание.
	Message string `json:"message"`
}
