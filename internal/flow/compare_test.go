package flow

import (
	"errors"
	"testing"
)

func TestCompare_Numbers(t *testing.T) {
	tests := []struct {
		name     string
		lhs      any
		op       CompareOp
		rhs      any
		expected bool
	}{
		{"eq ints", 5, OpEQ, 5, true},
		{"ne ints", 5, OpNE, 6, true},
		{"lt", 3, OpLT, 5, true},
		{"gt", 7, OpGT, 5, true},
		{"le equal", 5, OpLE, 5, true},
		{"ge below", 4, OpGE, 5, false},
		{"int vs float", 5, OpEQ, 5.0, true},
		{"float64 from json", 41.9, OpGE, float64(42), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.lhs, tt.op, tt.rhs)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Compare(%v %s %v) = %v, expected %v", tt.lhs, tt.op, tt.rhs, got, tt.expected)
			}
		})
	}
}

func TestCompare_StringLexical(t *testing.T) {
	got, err := Compare("abc", OpLT, "abd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("abc should be lexically less than abd")
	}

	got, err = Compare("same", OpEQ, "same")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("equal strings should compare EQ")
	}
}

func TestCompare_Booleans(t *testing.T) {
	got, err := Compare(true, OpEQ, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("true EQ true should hold")
	}

	if _, err := Compare(true, OpLT, false); !errors.Is(err, ErrIncomparable) {
		t.Errorf("expected ErrIncomparable for bool LT, got %v", err)
	}
}

func TestCompare_Incomparable(t *testing.T) {
	if _, err := Compare(5, OpEQ, "5"); !errors.Is(err, ErrIncomparable) {
		t.Errorf("expected ErrIncomparable for int vs string, got %v", err)
	}
	if _, err := Compare("x", OpGT, 1); !errors.Is(err, ErrIncomparable) {
		t.Errorf("expected ErrIncomparable for string vs int, got %v", err)
	}
}
