// Package config loads nanoplex.yaml run defaults.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches ${NAME} and ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config document.
// A set, non-empty variable wins; otherwise the fallback is used, and an
// unset reference without fallback becomes the empty string.
func ExpandEnv(doc string) string {
	matches := envRef.FindAllStringSubmatchIndex(doc, -1)
	if len(matches) == 0 {
		return doc
	}

	var b strings.Builder
	b.Grow(len(doc))
	last := 0
	for _, m := range matches {
		b.WriteString(doc[last:m[0]])
		name := doc[m[2]:m[3]]
		if v := os.Getenv(name); v != "" {
			b.WriteString(v)
		} else if m[6] >= 0 {
			b.WriteString(doc[m[6]:m[7]])
		}
		last = m[1]
	}
	b.WriteString(doc[last:])
	return b.String()
}
