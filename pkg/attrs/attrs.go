// Package attrs reads values back out of slog-style key/value lists.
package attrs

// Lookup returns the value paired with key in a [k1, v1, k2, v2, ...] list.
// A trailing key without a value is ignored.
func Lookup(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

// String returns the value for key when it is a string, and "" otherwise.
func String(kv []any, key string) string {
	v, _ := Lookup(kv, key)
	s, _ := v.(string)
	return s
}
