package models

import (
	"encoding/json"
	"math"
	"strings"
)

// The accessors below read fields out of a value produced by encoding/json.
// A missing key or a value of the wrong type yields the zero value; they never fail.

func field(v any, key string) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return obj[key]
}

func stringField(v any, key string) string {
	s, _ := field(v, key).(string)
	return s
}

func boolField(v any, key string) bool {
	b, _ := field(v, key).(bool)
	return b
}

func uintField(v any, key string) uint {
	switch n := field(v, key).(type) {
	case float64:
		if n < 0 || n > math.MaxUint32 || math.IsNaN(n) {
			return 0
		}
		return uint(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return 0
		}
		return uint(i)
	default:
		return 0
	}
}

// dateOnly cuts a SoundCloud timestamp ("2014/03/05 10:11:12 +0000") at its first space.
func dateOnly(s string) string {
	date, _, _ := strings.Cut(s, " ")
	return date
}
