package wire

import (
	"fmt"
	"time"
)

// MessageType — тип сообщения.
type MessageType string

const (
	// TypeRequest — запрос, инициирующий операцию на удалённой машине.
	TypeRequest MessageType = "REQUEST"

	// TypeResponse — успешный ответ на запрос.
	TypeResponse MessageType = "RESPONSE"

	// TypeError — ответ с ошибкой.
	TypeError MessageType = "ERROR"
)

// Namespace — пространство имён операции.
type Namespace string

const (
	// NamespaceNode — операции над узлами дерева модели.
	NamespaceNode Namespace = "NODE"

	// NamespaceVariable — чтение/запись/подписка на переменные.
	NamespaceVariable Namespace = "VARIABLE"

	// NamespaceMethod — вызов методов.
	NamespaceMethod Namespace = "METHOD"

	// NamespaceProtocol — служебные операции протокола (регистрация пиров).
	NamespaceProtocol Namespace = "PROTOCOL"
)

// Имена сообщений в namespace VARIABLE.
const (
	VariableRead        = "READ"
	VariableWrite       = "WRITE"
	VariableSubscribe   = "SUBSCRIBE"
	VariableUnsubscribe = "UNSUBSCRIBE"
	VariableUpdate      = "UPDATE"
)

// Имена сообщений в namespace METHOD.
const (
	MethodInvoke    = "INVOKE"
	MethodStarted   = "STARTED"
	MethodCompleted = "COMPLETED"
)

// Имена сообщений в namespace PROTOCOL.
const (
	ProtocolRegister   = "REGISTER"
	ProtocolUnregister = "UNREGISTER"
)

// Version — версия протокола (major.minor.patch).
type Version struct {
	Major uint8 `json:"major"`
	Minor uint8 `json:"minor"`
	Patch uint8 `json:"patch"`
}

// CurrentVersion — версия протокола, реализованная этим модулем.
var CurrentVersion = Version{Major: 1, Minor: 0, Patch: 0}

// String возвращает строковое представление версии.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compatible проверяет совместимость версий.
// Совместимыми считаются версии с одинаковым major.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Header — заголовок сообщения.
type Header struct {
	// Type — REQUEST, RESPONSE или ERROR.
	Type MessageType `json:"type"`

	// Version — версия протокола отправителя.
	Version Version `json:"version"`

	// Namespace — пространство имён операции.
	Namespace Namespace `json:"namespace"`

	// Name — имя сообщения внутри namespace (READ, INVOKE, ...).
	Name string `json:"name"`

	// Timestamp — время создания сообщения.
	Timestamp time.Time `json:"timestamp"`
}

// Message — единица обмена между машинами.
//
// Identifier уникален для каждого сообщения. CorrelationID общий
// для запроса и всех его ответов; для запросов, порождённых
// composite method, он равен id scope'а — так ответ находит
// приостановленное выполнение.
type Message struct {
	// Sender — идентификатор машины-отправителя.
	Sender string `json:"sender"`

	// Target — идентификатор машины-получателя.
	Target string `json:"target"`

	// Header — заголовок.
	Header Header `json:"header"`

	// Payload — полезная нагрузка, вариант по namespace.
	Payload Payload `json:"payload"`

	// Identifier — уникальный id этого сообщения.
	Identifier string `json:"identifier"`

	// CorrelationID — id, связывающий запрос и его ответы.
	CorrelationID string `json:"correlation_id"`
}

// IsRequest возвращает true для запросов.
func (m *Message) IsRequest() bool {
	return m.Header.Type == TypeRequest
}

// IsResponse возвращает true для успешных ответов.
func (m *Message) IsResponse() bool {
	return m.Header.Type == TypeResponse
}

// IsError возвращает true для ответов с ошибкой.
func (m *Message) IsError() bool {
	return m.Header.Type == TypeError
}

// NewRequest создаёт запрос.
// identifier и correlationID задаются вызывающей стороной: для запросов
// от composite method correlationID — это id scope'а.
func NewRequest(sender, target string, ns Namespace, name string, payload Payload, identifier, correlationID string) *Message {
	return &Message{
		Sender: sender,
		Target: target,
		Header: Header{
			Type:      TypeRequest,
			Version:   CurrentVersion,
			Namespace: ns,
			Name:      name,
			Timestamp: time.Now(),
		},
		Payload:       payload,
		Identifier:    identifier,
		CorrelationID: correlationID,
	}
}

// NewResponse создаёт ответ на запрос.
// Отправитель и получатель меняются местами, correlation_id сохраняется.
func NewResponse(req *Message, name string, payload Payload, identifier string) *Message {
	return &Message{
		Sender: req.Target,
		Target: req.Sender,
		Header: Header{
			Type:      TypeResponse,
			Version:   CurrentVersion,
			Namespace: req.Header.Namespace,
			Name:      name,
			Timestamp: time.Now(),
		},
		Payload:       payload,
		Identifier:    identifier,
		CorrelationID: req.CorrelationID,
	}
}

// NewErrorResponse создаёт ответ с ошибкой на запрос.
func NewErrorResponse(req *Message, code ErrorCode, message string, identifier string) *Message {
	return &Message{
		Sender: req.Target,
		Target: req.Sender,
		Header: Header{
			Type:      TypeError,
			Version:   CurrentVersion,
			Namespace: req.Header.Namespace,
			Name:      req.Header.Name,
			Timestamp: time.Now(),
		},
		Payload: Payload{
			Error: &ErrorPayload{Code: code, Message: message},
		},
		Identifier:    identifier,
		CorrelationID: req.CorrelationID,
	}
}

// Validate проверяет структурную корректность сообщения:
// payload должен соответствовать namespace, обязательные поля заполнены.
func (m *Message) Validate() error {
	if m.Identifier == "" {
		return fmt.Errorf("%w: empty identifier", ErrMalformed)
	}
	if m.CorrelationID == "" {
		return fmt.Errorf("%w: empty correlation_id", ErrMalformed)
	}

	if m.Header.Type == TypeError {
		if m.Payload.Error == nil {
			return fmt.Errorf("%w: error message without error payload", ErrMalformed)
		}
		return nil
	}

	switch m.Header.Namespace {
	case NamespaceVariable:
		if m.Payload.Variable == nil && m.Payload.Subscription == nil {
			return fmt.Errorf("%w: VARIABLE message without variable payload", ErrMalformed)
		}
	case NamespaceMethod:
		if m.Payload.Method == nil {
			return fmt.Errorf("%w: METHOD message without method payload", ErrMalformed)
		}
	case NamespaceNode, NamespaceProtocol:
		// payload опционален
	default:
		return fmt.Errorf("%w: unknown namespace %q", ErrMalformed, m.Header.Namespace)
	}

	return nil
}
