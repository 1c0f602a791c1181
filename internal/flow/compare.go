package flow

import (
	"fmt"
	"strings"
)

// CompareOp — оператор условия ожидания.
type CompareOp string

const (
	OpEQ CompareOp = "EQ"
	OpNE CompareOp = "NE"
	OpLT CompareOp = "LT"
	OpGT CompareOp = "GT"
	OpLE CompareOp = "LE"
	OpGE CompareOp = "GE"
)

// Compare вычисляет lhs op rhs по правилам родных типов:
// числа сравниваются численно (целые и с плавающей точкой — между
// собой), строки — лексикографически, булевы — только на равенство.
// Несравнимые комбинации — ошибка ErrIncomparable.
func Compare(lhs any, op CompareOp, rhs any) (bool, error) {
	if lf, lok := toFloat(lhs); lok {
		if rf, rok := toFloat(rhs); rok {
			return ordered(compareFloats(lf, rf), op)
		}
		return false, fmt.Errorf("%w: %T vs %T", ErrIncomparable, lhs, rhs)
	}

	if ls, lok := lhs.(string); lok {
		if rs, rok := rhs.(string); rok {
			return ordered(strings.Compare(ls, rs), op)
		}
		return false, fmt.Errorf("%w: %T vs %T", ErrIncomparable, lhs, rhs)
	}

	if lb, lok := lhs.(bool); lok {
		if rb, rok := rhs.(bool); rok {
			switch op {
			case OpEQ:
				return lb == rb, nil
			case OpNE:
				return lb != rb, nil
			default:
				return false, fmt.Errorf("%w: booleans support only EQ/NE", ErrIncomparable)
			}
		}
		return false, fmt.Errorf("%w: %T vs %T", ErrIncomparable, lhs, rhs)
	}

	// Остальные типы — только равенство через интерфейсное сравнение.
	switch op {
	case OpEQ:
		return lhs == rhs, nil
	case OpNE:
		return lhs != rhs, nil
	default:
		return false, fmt.Errorf("%w: %T vs %T", ErrIncomparable, lhs, rhs)
	}
}

// ordered отображает знак сравнения на оператор.
func ordered(sign int, op CompareOp) (bool, error) {
	switch op {
	case OpEQ:
		return sign == 0, nil
	case OpNE:
		return sign != 0, nil
	case OpLT:
		return sign < 0, nil
	case OpGT:
		return sign > 0, nil
	case OpLE:
		return sign <= 0, nil
	case OpGE:
		return sign >= 0, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrIncomparable, op)
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// toFloat приводит числовые типы (включая float64 из JSON) к float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
