package prompt

import (
	"log/slog"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

var knownVars = map[string]bool{
	"tenant_name": true,
	"context":     true,
	"question":    true,
}

// Vars holds the values substituted into a rendered template.
type Vars struct {
	TenantName string
	Context    string
	Question   string
}

// Render substitutes {tenant_name}, {context}, {question} in tmpl. Any
// other {placeholder} is left untouched in the output and logged as a
// warning, since the template couldn't have meant anything this code
// knows how to fill in.
func Render(tmpl string, vars Vars) string {
	values := map[string]string{
		"tenant_name": vars.TenantName,
		"context":     vars.Context,
		"question":    vars.Question,
	}

	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := strings.Trim(match, "{}")
		if !knownVars[name] {
			slog.Warn("prompt.Render: unknown placeholder", "placeholder", name)
			return match
		}
		return values[name]
	})
}
