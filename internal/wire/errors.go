package wire

import "errors"

// ErrorCode — коды ошибок, передаваемые в ErrorPayload.
type ErrorCode string

const (
	// CodeNodeNotFound — целевой узел не найден в дереве модели.
	CodeNodeNotFound ErrorCode = "NODE_NOT_FOUND"

	// CodeUnsupportedOperation — операция не поддерживается
	// для данного namespace или типа узла.
	CodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// CodeBadRequest — структурно некорректный запрос.
	CodeBadRequest ErrorCode = "BAD_REQUEST"

	// CodeBadResponse — структурно некорректный ответ.
	CodeBadResponse ErrorCode = "BAD_RESPONSE"

	// CodeNotAllowed — переменная отклонила запись.
	CodeNotAllowed ErrorCode = "NOT_ALLOWED"

	// CodeVersionNotSupported — несовместимая версия протокола.
	CodeVersionNotSupported ErrorCode = "VERSION_NOT_SUPPORTED"

	// CodeNotFound — неизвестный context/correlation id.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeInternal — внутренняя ошибка обработки.
	CodeInternal ErrorCode = "INTERNAL"
)

// Ошибки кодека и валидации сообщений.
var (
	// ErrMalformed — сообщение структурно некорректно.
	ErrMalformed = errors.New("malformed message")

	// ErrVersionNotSupported — версия протокола сообщения несовместима.
	ErrVersionNotSupported = errors.New("protocol version not supported")
)
