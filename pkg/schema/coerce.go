package schema

import (
	"strconv"
	"strings"
)

// Coerce converts raw string arguments, as typed in a /command, into the
// types the schema declares. A value that does not parse as its declared
// type stays a string so Validate reports it instead of silently dropping it.
func (s *Schema) Coerce(raw map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for name, value := range raw {
		prop, ok := s.Properties[name]
		if !ok {
			out[name] = value
			continue
		}
		out[name] = prop.coerceValue(value)
	}
	return out
}

func (s *Schema) coerceValue(value string) interface{} {
	switch s.Type {
	case TypeInteger:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return float64(n)
		}
	case TypeNumber:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case TypeArray:
		parts := strings.Split(value, ",")
		items := make([]interface{}, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if s.Items != nil {
				items = append(items, s.Items.coerceValue(p))
			} else {
				items = append(items, p)
			}
		}
		return items
	}
	return value
}
