package llm

import (
	"fmt"
	"strings"
)

const summarySystemPrompt = "Summarize this transcript into concise bullet points."

// BuildTranslationPrompt generates the system prompt for translating one utterance
func BuildTranslationPrompt(from, to string) string {
	var b strings.Builder

	b.WriteString("You are a translation engine for live speech transcripts.\n\n")
	if from != "" {
		b.WriteString(fmt.Sprintf("Translate the user's text from %s to %s.\n", from, to))
	} else {
		b.WriteString(fmt.Sprintf("Translate the user's text to %s.\n", to))
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Output ONLY the translation, nothing else\n")
	b.WriteString("- Keep punctuation and numbers as in the input\n")
	b.WriteString("- The input may be an incomplete sentence; translate it as-is\n")
	b.WriteString("- If the input is already in the target language, return it unchanged\n")

	return b.String()
}

// BuildSummaryPrompt returns the system prompt used for transcript summaries
func BuildSummaryPrompt() string {
	return summarySystemPrompt
}
