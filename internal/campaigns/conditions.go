package campaigns

import (
	"encoding/json"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
)

// Matches reports whether payload satisfies cond. Equality is strict: a
// string never equals a number. Numbers compare by value whatever their Go
// type.
func Matches(cond models.Condition, payload map[string]any) bool {
	switch c := cond.(type) {
	case nil:
		return true
	case models.EmptyCondition:
		return true
	case models.EqCondition:
		v, ok := payload[c.Key]
		return ok && strictEqual(v, c.Value)
	case models.AndCondition:
		for _, arg := range c.Args {
			if !Matches(arg, payload) {
				return false
			}
		}
		return true
	case models.UnknownCondition:
		return false
	default:
		return false
	}
}

func strictEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case nil:
		return b == nil
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
