package intent

import "strings"

// secretKeyFragments flag a map key for redaction when any fragment
// appears in the lowercased key.
var secretKeyFragments = []string{
	"api_key", "apikey", "token", "secret", "password",
	"authorization", "credential", "private_key",
}

const redactedPlaceholder = "[REDACTED]"

// Redact returns a deep copy of m with every secret-looking key's value
// replaced, recursing into nested maps and slices. The input is never
// mutated.
func Redact(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if isSecretKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return Redact(t)
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i, e := range t {
			cp[i] = redactValue(e)
		}
		return cp
	default:
		return v
	}
}

func isSecretKey(key string) bool {
	lk := strings.ToLower(key)
	for _, frag := range secretKeyFragments {
		if strings.Contains(lk, frag) {
			return true
		}
	}
	return false
}
