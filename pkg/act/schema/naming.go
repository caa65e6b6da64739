package schema

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ToWire converts an attribute name (snake_case) into its wire name (camelCase).
func ToWire(name string) string {
	segments := strings.Split(name, "_")

	var b strings.Builder
	b.Grow(len(name))
	b.WriteString(strings.ToLower(segments[0]))

	for _, s := range segments[1:] {
		if s == "" {
			continue
		}

		r, size := utf8.DecodeRuneInString(s)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(strings.ToLower(s[size:]))
	}

	return b.String()
}

var (
	titledWord     = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	lowerThenUpper = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// ToAttr converts a wire name (camelCase) into an attribute name (snake_case).
// Names that are already snake_case are returned unchanged.
func ToAttr(name string) string {
	name = titledWord.ReplaceAllString(name, "${1}_${2}")
	return strings.ToLower(lowerThenUpper.ReplaceAllString(name, "${1}_${2}"))
}
