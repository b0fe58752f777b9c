package log

import "strings"

// Redacted replaces the value of every secret-looking key.
const Redacted = "[REDACTED]"

var secretKeyParts = []string{
	"password",
	"passphrase",
	"private_key",
	"privatekey",
	"mnemonic",
	"secret",
	"seed",
}

// IsSecretKey reports whether values logged under key must be hidden.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range secretKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// Redact returns keysAndValues with secret values replaced. The input is not modified.
func Redact(keysAndValues []any) []any {
	var out []any
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok || !IsSecretKey(key) {
			continue
		}
		if out == nil {
			out = make([]any, len(keysAndValues))
			copy(out, keysAndValues)
		}
		out[i+1] = Redacted
	}
	if out == nil {
		return keysAndValues
	}
	return out
}
