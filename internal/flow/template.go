package flow

import (
	"fmt"
	"strings"
)

// HasTemplate возвращает true, если строка содержит подстановку.
func HasTemplate(s string) bool {
	return strings.Contains(s, "$")
}

// ResolveString разрешает шаблоны в строке по locals scope'а.
//
// Две формы:
//   - "$name"       — вся строка заменяется значением local как есть
//     (тип сохраняется: $x при x=5 даёт int 5);
//   - "a_${name}_b" — значение встраивается в строку.
//
// Отсутствующий local — ошибка ErrUnresolvedTemplate.
func ResolveString(s string, scope *Scope) (any, error) {
	// Форма $name: значение целиком, без изменения типа.
	if strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "${") && !strings.Contains(s[1:], "$") {
		name := s[1:]
		if v, ok := scope.Local(name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: $%s", ErrUnresolvedTemplate, name)
	}

	if !strings.Contains(s, "${") {
		return s, nil
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start

		b.WriteString(rest[:start])
		name := rest[start+2 : end]
		v, ok := scope.Local(name)
		if !ok {
			return nil, fmt.Errorf("%w: ${%s}", ErrUnresolvedTemplate, name)
		}
		fmt.Fprintf(&b, "%v", v)
		rest = rest[end+1:]
	}
	return b.String(), nil
}

// ResolveValue разрешает шаблоны в произвольном значении.
// Строки обрабатываются ResolveString, map и слайсы — рекурсивно,
// остальные типы возвращаются как есть.
func ResolveValue(value any, scope *Scope) (any, error) {
	switch v := value.(type) {
	case string:
		return ResolveString(v, scope)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			resolved, err := ResolveValue(val, scope)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			resolved, err := ResolveValue(val, scope)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	default:
		return value, nil
	}
}

// ResolvePath разрешает шаблоны в пути узла.
// Результат подстановки обязан быть строкой.
func ResolvePath(path string, scope *Scope) (string, error) {
	resolved, err := ResolveString(path, scope)
	if err != nil {
		return "", err
	}
	s, ok := resolved.(string)
	if !ok {
		return "", fmt.Errorf("%w: path template resolved to %T", ErrUnresolvedTemplate, resolved)
	}
	return s, nil
}
