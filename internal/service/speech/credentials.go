package speech

import (
	"errors"
	"strings"
)

// ErrMissingAPIKey means a provider was selected without credentials.
var ErrMissingAPIKey = errors.New("openai speech: api key is required")

// resolveAPIKey trims the key and rejects an empty one.
func resolveAPIKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	return key, nil
}
