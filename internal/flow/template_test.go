package flow

import (
	"errors"
	"testing"
)

func TestResolveString_WholeValue(t *testing.T) {
	scope := NewScope("s-1", map[string]any{
		"x":    5,
		"name": "pump",
	})

	// $x — значение целиком, тип сохраняется.
	v, err := ResolveString("$x", scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 5 {
		t.Errorf("expected int 5, got %v (%T)", v, v)
	}

	// Строка без подстановок возвращается как есть.
	v, err = ResolveString("plain", scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "plain" {
		t.Errorf("expected plain, got %v", v)
	}
}

func TestResolveString_Embedding(t *testing.T) {
	scope := NewScope("s-1", map[string]any{
		"x":    5,
		"name": "pump",
	})

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "embedded number",
			template: "a_${x}_b",
			expected: "a_5_b",
		},
		{
			name:     "embedded string",
			template: "unit/${name}/state",
			expected: "unit/pump/state",
		},
		{
			name:     "two substitutions",
			template: "${name}-${x}",
			expected: "pump-5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ResolveString(tt.template, scope)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v != tt.expected {
				t.Errorf("expected %q, got %v", tt.expected, v)
			}
		})
	}
}

func TestResolveString_Unresolved(t *testing.T) {
	scope := NewScope("s-1", nil)

	if _, err := ResolveString("$missing", scope); !errors.Is(err, ErrUnresolvedTemplate) {
		t.Errorf("expected ErrUnresolvedTemplate, got %v", err)
	}
	if _, err := ResolveString("a_${missing}_b", scope); !errors.Is(err, ErrUnresolvedTemplate) {
		t.Errorf("expected ErrUnresolvedTemplate, got %v", err)
	}
}

func TestResolveValue_Recursive(t *testing.T) {
	scope := NewScope("s-1", map[string]any{"x": 5})

	resolved, err := ResolveValue(map[string]any{
		"direct": "$x",
		"nested": []any{"a_${x}_b", 7},
	}, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := resolved.(map[string]any)
	if m["direct"] != 5 {
		t.Errorf("expected direct=5, got %v", m["direct"])
	}
	nested := m["nested"].([]any)
	if nested[0] != "a_5_b" {
		t.Errorf("expected a_5_b, got %v", nested[0])
	}
	if nested[1] != 7 {
		t.Errorf("expected literal 7, got %v", nested[1])
	}
}

func TestResolvePath(t *testing.T) {
	scope := NewScope("s-1", map[string]any{"unit": "tank", "n": 3})

	path, err := ResolvePath("plant/${unit}/level", scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "plant/tank/level" {
		t.Errorf("expected plant/tank/level, got %q", path)
	}

	// Путь обязан разрешиться в строку.
	if _, err := ResolvePath("$n", scope); !errors.Is(err, ErrUnresolvedTemplate) {
		t.Errorf("expected ErrUnresolvedTemplate for non-string path, got %v", err)
	}
}
