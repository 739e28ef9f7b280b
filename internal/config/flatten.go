package config

import (
	"sort"
	"strings"
)

// Credentials never printed in full by `config list` or `config get`.
var secretKeys = map[string]bool{
	"llm.api_key":           true,
	"weather.api_key":       true,
	"calendar.access_token": true,
	"telegram.token":        true,
}

func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns the nested config document into dotted keys
// ("calendar.backend", "timeouts.extract_seconds") for the CLI.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	walk("", m, out)
	return out
}

func walk(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			walk(k, child, out)
			continue
		}
		out[k] = v
	}
}

// Unflatten is the inverse of Flatten. A scalar sitting where a section is
// needed is replaced by that section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		path := strings.Split(key, ".")
		section := out
		for _, name := range path[:len(path)-1] {
			child, ok := section[name].(map[string]any)
			if !ok {
				child = make(map[string]any)
				section[name] = child
			}
			section = child
		}
		section[path[len(path)-1]] = v
	}
	return out
}

// MaskSecrets copies flat, showing only the last four characters of each
// non-empty secret.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		s, ok := v.(string)
		if secretKeys[k] && ok && s != "" {
			v = mask(s)
		}
		out[k] = v
	}
	return out
}

func mask(s string) string {
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return "***" + s
}

func SortedKeys(flat map[string]any) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
