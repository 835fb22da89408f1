package gitcmd

import (
	"strings"
	"sync"
)

// secrets holds values that must not appear in errors or log messages, e.g.
// credentialed remote URLs passed to git as arguments.
var secrets struct {
	mu   sync.Mutex
	vals []string
}

func registerSecret(val string) {
	if val == "" {
		return
	}

	secrets.mu.Lock()
	defer secrets.mu.Unlock()

	for _, v := range secrets.vals {
		if v == val {
			return
		}
	}

	secrets.vals = append(secrets.vals, val)
}

const redactedPlaceholder = "**hidden**"

// redact replaces all registered secret values in s with a placeholder.
func redact(s string) string {
	secrets.mu.Lock()
	defer secrets.mu.Unlock()

	for _, v := range secrets.vals {
		s = strings.ReplaceAll(s, v, redactedPlaceholder)
	}

	return s
}

func redactAll(in []string) []string {
	result := make([]string, 0, len(in))

	for _, s := range in {
		result = append(result, redact(s))
	}

	return result
}
