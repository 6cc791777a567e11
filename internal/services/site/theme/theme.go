// Package theme resolves and persists the visitor's colour theme. The stored
// preference is functional state: it is only kept while functional consent is
// granted.
package theme

import "strings"

// Theme is the applied colour theme.
type Theme string

const (
	Dark  Theme = "dark"
	Light Theme = "light"
)

// StorageKey is the preference key holding the chosen theme.
const StorageKey = "theme"

// Parse accepts exactly "dark" or "light".
func Parse(raw string) (Theme, bool) {
	switch Theme(strings.TrimSpace(raw)) {
	case Dark:
		return Dark, true
	case Light:
		return Light, true
	default:
		return "", false
	}
}

// Opposite returns the theme Toggle switches to.
func (t Theme) Opposite() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Resolve picks the theme for a page load: the stored value when functional
// consent is granted and the value is valid, otherwise the OS preference.
// The server render and Controller.Init both resolve through here.
func Resolve(functionalAllowed bool, stored string, storedOK bool, prefersDark bool) Theme {
	if functionalAllowed && storedOK {
		if t, ok := Parse(stored); ok {
			return t
		}
	}
	if prefersDark {
		return Dark
	}
	return Light
}
