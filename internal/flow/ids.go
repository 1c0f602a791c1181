package flow

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator выдаёт идентификаторы scope'ов и сообщений.
//
// Вынесен в интерфейс, чтобы тесты могли подставлять детерминированные
// id вместо библиотечных UUID.
type IDGenerator interface {
	NewID() string
}

// UUIDs — production-генератор на основе UUID v4.
type UUIDs struct{}

// NewID реализует IDGenerator.
func (UUIDs) NewID() string {
	return uuid.NewString()
}

// SequenceIDs — детерминированный генератор вида "prefix-1", "prefix-2".
type SequenceIDs struct {
	Prefix string
	n      atomic.Uint64
}

// NewID реализует IDGenerator.
func (s *SequenceIDs) NewID() string {
	return fmt.Sprintf("%s-%d", s.Prefix, s.n.Add(1))
}
