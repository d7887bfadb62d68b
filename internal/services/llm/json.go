package llm

import (
	"strings"

	"github.com/tidwall/gjson"

	"reelsmith/internal/services"
)

// ExtractJSON pulls the first JSON object or array out of a completion.
// Models frequently wrap payloads in markdown fences or prose; this trims
// both before handing the result to gjson.
func ExtractJSON(raw string) (gjson.Result, error) {
	cleaned := stripFences(raw)

	if start := strings.IndexAny(cleaned, "{["); start >= 0 {
		cleaned = cleaned[start:]
	}
	if !gjson.Valid(cleaned) {
		// Trailing prose after the payload is common; walk back to the
		// last closing bracket and retry.
		if end := strings.LastIndexAny(cleaned, "}]"); end >= 0 {
			cleaned = cleaned[:end+1]
		}
	}
	if !gjson.Valid(cleaned) {
		return gjson.Result{}, services.Wrap(services.ErrUpstream, "llm", "parse", "completion is not valid JSON", nil)
	}
	return gjson.Parse(cleaned), nil
}

// StringList collects non-empty strings from a JSON array at path.
func StringList(result gjson.Result, path string) []string {
	var out []string
	result.Get(path).ForEach(func(_, value gjson.Result) bool {
		if s := strings.TrimSpace(value.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
