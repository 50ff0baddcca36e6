package pipeline

// Argument extraction helpers. Arguments arrive as a decoded
// map[string]interface{} from encoding/json, so numbers surface as
// float64 and nested objects as map[string]interface{} regardless of
// their JSON Schema type.

func argString(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func argStringDefault(args map[string]interface{}, key, def string) string {
	if s, ok := argString(args, key); ok && s != "" {
		return s
	}
	return def
}

func argMap(args map[string]interface{}, key string) map[string]interface{} {
	v, ok := args[key]
	if !ok {
		return nil
	}
	m, _ := v.(map[string]interface{})
	return m
}

func argBool(args map[string]interface{}, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func argInt(args map[string]interface{}, key string) int {
	return argIntDefault(args, key, 0)
}

func argIntDefault(args map[string]interface{}, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func argStringSlice(args map[string]interface{}, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
