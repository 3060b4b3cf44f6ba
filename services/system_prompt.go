package services

import (
	"fmt"
	"strings"
)

const assistantIntro = "You are BGE ELECTRIQUE's intelligent assistant"

// BuildPrompt assembles the chat prompt. The document section is left out
// entirely when there is no context.
func BuildPrompt(message, context string) string {
	var sb strings.Builder
	sb.WriteString(assistantIntro)
	sb.WriteString(", an expert in electrical systems, installations, and services.\n\n")
	if context != "" {
		fmt.Fprintf(&sb, "Relevant Information from Documents:\n%s\n\n", context)
	}
	fmt.Fprintf(&sb, "User Question: %s\n\n", message)
	sb.WriteString(`Instructions:
- Provide accurate, professional, and helpful responses
- If the information is in the provided context, use it to answer
- If you're unsure or the information isn't available, be honest about it
- Keep responses clear, concise, and technical when appropriate
- Focus on electrical safety, quality, and best practices

Your Response:`)
	return sb.String()
}

// BuildStreamPrompt is the shorter prompt used for streamed answers.
func BuildStreamPrompt(message, context string) string {
	var sb strings.Builder
	sb.WriteString(assistantIntro)
	sb.WriteString(".\n")
	if context != "" {
		fmt.Fprintf(&sb, "Context: %s\n\n", context)
	}
	fmt.Fprintf(&sb, "User: %s\nAssistant:", message)
	return sb.String()
}
