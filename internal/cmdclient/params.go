package cmdclient

import (
	"fmt"
	"net/url"
	"strconv"
)

// Params — параметры команды, сериализуются в плоскую query string.
// Значения nil (в том числе типизированные nil-указатели) не передаются.
type Params map[string]any

// Encode сериализует параметры в query string (ключи отсортированы).
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}

	vals := make(url.Values, len(p))
	for k, v := range p {
		s, ok := formatScalar(v)
		if !ok {
			continue
		}
		vals.Set(k, s)
	}
	return vals.Encode()
}

// formatScalar приводит скалярное значение к строке.
// Второй результат false означает "параметр отсутствует".
func formatScalar(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case *string:
		if x == nil {
			return "", false
		}
		return *x, true
	case *int:
		if x == nil {
			return "", false
		}
		return strconv.Itoa(*x), true
	case *int64:
		if x == nil {
			return "", false
		}
		return strconv.FormatInt(*x, 10), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}
