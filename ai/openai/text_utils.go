package openai

import (
	"regexp"
	"strings"
)

// Reasoning models served through Ollama and vLLM prepend their scratchpad.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// cleanCompletion strips reasoning blocks and a wrapping markdown fence from
// model output.
func cleanCompletion(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimPrefix(s, "```")
		// drop an info string such as "markdown"
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], " \t") {
			s = s[i+1:]
		}
	}
	return strings.TrimSpace(s)
}
