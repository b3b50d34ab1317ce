package react

import (
	"fmt"
	"strings"

	"netagent/pkg/models"
)

// Validate checks a parsed action against the tools the active agent can
// actually see, catching hallucinated tool names before they hit the
// registry. A name absent from the list is still accepted when a substring
// match exists in either direction, which covers minor naming drift between
// the prompt and the registry; the name is never rewritten.
func Validate(action models.Action, availableTools []string) (bool, []string) {
	var errs []string

	switch action.Type {
	case models.ActionUnknown:
		errs = append(errs, "could not determine action type from model output")
		return false, errs
	case models.ActionTool:
		if action.Tool == "" {
			errs = append(errs, "action is TOOL but no tool name was given")
			return false, errs
		}
		if len(availableTools) > 0 && !toolKnown(action.Tool, availableTools) {
			errs = append(errs, fmt.Sprintf("tool %q does not exist, available tools: %s",
				action.Tool, strings.Join(availableTools, ", ")))
		}
	}

	return len(errs) == 0, errs
}

func toolKnown(name string, available []string) bool {
	for _, t := range available {
		if t == name {
			return true
		}
		if strings.Contains(t, name) || strings.Contains(name, t) {
			return true
		}
	}
	return false
}
