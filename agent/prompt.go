package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/opsmind/core"
)

const (
	chunkSeparator = "\n\n---\n\n"

	systemPrompt = `You are a helpful AI assistant with access to company documents and tools.

Instructions:
- Answer only from the CONTEXT FROM DOCUMENTS and any tool data provided
- If tool data is available, incorporate it into your answer
- Be conversational and refer to previous messages if relevant
- If the context does not contain the answer, say clearly that you don't know`

	// NoResultsAnswer is returned when retrieval finds nothing.
	NoResultsAnswer = "I couldn't find any relevant information in the uploaded documents."

	quotaNotice   = "(⚠️ Note: AI Daily Quota Reached - Showing Raw Database Result)"
	outageNotice  = "(⚠️ Note: AI Service Unavailable - Showing Raw Database Result)"
	fallbackIntro = "Here is the relevant policy I found:"
)

// buildContext joins retrieved chunk contents.
func buildContext(results []*core.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Chunk.Content)
	}
	return strings.Join(parts, chunkSeparator)
}

// renderHistory renders the last n turns as "ROLE: content" lines.
func renderHistory(history []core.ConversationTurn, n int) string {
	if len(history) == 0 || n <= 0 {
		return ""
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var sb strings.Builder
	sb.WriteString("PREVIOUS CONVERSATION:\n")
	for _, turn := range history {
		fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(string(turn.Role)), turn.Content)
	}
	return sb.String()
}

// renderTools renders tool results as indented JSON.
func renderTools(tools []core.ToolInvocation) string {
	if len(tools) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("AVAILABLE TOOL DATA:\n")
	for _, tool := range tools {
		fmt.Fprintf(&sb, "Tool: %s\nResult: %s\n", tool.ToolName, indentJSON(tool.Result))
	}
	return sb.String()
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func buildPrompt(question, context, history, tools string) string {
	var sb strings.Builder
	sb.WriteString("CONTEXT FROM DOCUMENTS:\n")
	sb.WriteString(context)
	sb.WriteString("\n")
	if tools != "" {
		sb.WriteString("\n")
		sb.WriteString(tools)
	}
	if history != "" {
		sb.WriteString("\n")
		sb.WriteString(history)
	}
	sb.WriteString("\nCURRENT QUESTION: ")
	sb.WriteString(question)
	return sb.String()
}

// fallbackAnswer presents the raw material when no model answer is available.
func fallbackAnswer(notice, context string, tools []core.ToolInvocation) string {
	var sb strings.Builder
	sb.WriteString(notice)
	sb.WriteString("\n\n")
	sb.WriteString(fallbackIntro)
	sb.WriteString("\n\n")
	sb.WriteString(context)
	if len(tools) > 0 {
		sb.WriteString("\n\nTool Data:")
		for _, tool := range tools {
			sb.WriteString("\n")
			sb.WriteString(indentJSON(tool.Result))
		}
	}
	return sb.String()
}
