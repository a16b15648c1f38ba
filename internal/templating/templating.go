// Package templating resolves ${property} placeholders in message text.
//
// A placeholder may carry a fallback used when the property is missing or
// empty: ${user.name|fallback="friend"}. Inside JSON documents the quotes
// of the fallback are escaped: ${user.name|fallback=\"friend\"}.
package templating

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMissingProperty is returned when a placeholder has neither a value nor a
// fallback.
var ErrMissingProperty = errors.New("missing property value")

var (
	placeholder      = regexp.MustCompile(`\$\{([^}]*)\}`)
	fallbackText     = regexp.MustCompile(`(?i)\|fallback="([^}]*)"$`)
	fallbackJSONText = regexp.MustCompile(`(?i)\|fallback=\\"([^}]*)\\"$`)
)

// HasPlaceholder reports whether text contains at least one placeholder.
func HasPlaceholder(text string) bool {
	return placeholder.MatchString(text)
}

// Apply substitutes every placeholder in text.
func Apply(text string, props map[string]string) (string, error) {
	return apply(text, props, fallbackText, func(s string) string { return s })
}

// ApplyJSON substitutes placeholders inside a JSON document. Substituted
// values are escaped for use inside a JSON string.
func ApplyJSON(doc string, props map[string]string) (string, error) {
	return apply(doc, props, fallbackJSONText, escapeJSON)
}

func apply(text string, props map[string]string, fallback *regexp.Regexp, escape func(string) string) (string, error) {
	if text == "" {
		return text, nil
	}

	var b strings.Builder
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(text[last:loc[0]])
		last = loc[1]

		key := text[loc[2]:loc[3]]
		var def *string
		if m := fallback.FindStringSubmatchIndex(key); m != nil {
			v := key[m[2]:m[3]]
			def = &v
			key = key[:m[0]]
		}

		if v, ok := props[key]; ok && v != "" {
			b.WriteString(escape(v))
			continue
		}
		if def != nil {
			b.WriteString(*def)
			continue
		}
		return "", fmt.Errorf("%w for key %q", ErrMissingProperty, key)
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

func escapeJSON(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return s
	}
	return string(b[1 : len(b)-1])
}
