package gemini

import "strings"

// CleanJSON strips Markdown code fences and surrounding chatter from a model
// answer, keeping the outermost JSON array or object.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return strings.Trim(s, "`")
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = strings.TrimSpace(s[:idx])
	}

	open, close := outermost(s)
	if open == -1 {
		return s
	}
	if end := strings.LastIndexByte(s, close); end > open {
		s = s[open : end+1]
	}
	return strings.TrimSpace(s)
}

// outermost finds whichever of '[' or '{' opens first.
func outermost(s string) (int, byte) {
	arr := strings.IndexByte(s, '[')
	obj := strings.IndexByte(s, '{')
	switch {
	case arr == -1 && obj == -1:
		return -1, 0
	case obj == -1 || (arr != -1 && arr < obj):
		return arr, ']'
	}
	return obj, '}'
}
