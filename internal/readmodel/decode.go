package readmodel

import "strings"

// field reads a key from a generic decoded document tolerant of both
// camelCase and PascalCase spellings, because the projector and historical
// manual writers disagreed on casing (see the design notes on casing
// tolerance). It does not attempt general-purpose case folding: only the
// exact camelCase key and its leading-capital PascalCase variant are
// tried, since those are the only two spellings ever observed on disk.
func field(m map[string]interface{}, camel string) (interface{}, bool) {
	if v, ok := m[camel]; ok {
		return v, true
	}
	pascal := strings.ToUpper(camel[:1]) + camel[1:]
	if v, ok := m[pascal]; ok {
		return v, true
	}
	return nil, false
}

func fieldFloat(m map[string]interface{}, camel string, def float64) float64 {
	v, ok := field(m, camel)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

func fieldInt(m map[string]interface{}, camel string, def int) int {
	return int(fieldFloat(m, camel, float64(def)))
}

func fieldString(m map[string]interface{}, camel string, def string) string {
	v, ok := field(m, camel)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func fieldMap(m map[string]interface{}, camel string) map[string]interface{} {
	v, ok := field(m, camel)
	if !ok {
		return nil
	}
	sub, _ := v.(map[string]interface{})
	return sub
}
