package protocol

import (
	"errors"

	"github.com/shaiso/Machina/internal/flow"
	"github.com/shaiso/Machina/internal/model"
	"github.com/shaiso/Machina/internal/wire"
)

// ErrDuplicateMethod — composite method с таким путём уже зарегистрирован.
var ErrDuplicateMethod = errors.New("composite method already registered")

// codeFor отображает ошибку движка или модели в код протокола.
func codeFor(err error) wire.ErrorCode {
	switch {
	case errors.Is(err, model.ErrNodeNotFound):
		return wire.CodeNodeNotFound
	case errors.Is(err, model.ErrWrongNodeType):
		return wire.CodeUnsupportedOperation
	case errors.Is(err, flow.ErrContextNotFound):
		return wire.CodeNotFound
	case errors.Is(err, flow.ErrBadResponse):
		return wire.CodeBadResponse
	case errors.Is(err, flow.ErrUnresolvedTemplate), errors.Is(err, flow.ErrIncomparable):
		return wire.CodeBadRequest
	case errors.Is(err, wire.ErrMalformed):
		return wire.CodeBadRequest
	case errors.Is(err, wire.ErrVersionNotSupported):
		return wire.CodeVersionNotSupported
	default:
		return wire.CodeInternal
	}
}
