package httpscenario

import (
	"regexp"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Resolve replaces {{name}} placeholders with values from vars.
// Unknown placeholders are left as-is.
func Resolve(input string, vars map[string]string) string {
	if len(vars) == 0 {
		return input
	}
	return placeholderRe.ReplaceAllStringFunc(input, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns the variable names referenced by input, in order.
func Placeholders(input string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(input, -1) {
		names = append(names, m[1])
	}
	return names
}
