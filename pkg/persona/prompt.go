package persona

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used by anonymous sessions and by personas that
// carry no prompt of their own.
const DefaultSystemPrompt = `You are a helpful and friendly voice AI assistant. Your responses should be:

- Conversational and natural, as if speaking to a friend
- Concise but informative, aim for one to three sentences unless more detail is specifically requested
- Clear and easy to understand when spoken aloud
- Engaging and personable while remaining professional
- Free of overly complex language or long lists that are hard to follow in audio

When responding:
- Use a warm, approachable tone
- Speak in a natural rhythm suitable for text to speech
- If you need to provide multiple items or steps, break them into digestible chunks
- Ask clarifying questions when needed
- Acknowledge when you don't know something rather than guessing

Users hear you rather than read you. Do not use abbreviations or numerals in your responses; spell numbers out as words.`

// retrievalInstruction tells the model that the search_docs tool is bound.
const retrievalInstruction = "The user has uploaded documents. When a question may be answered by them, call the search_docs tool before answering and base your answer on what it returns."

// ComposeSystemPrompt builds the system prompt of an identified session. The
// retrieval note is left to WithRetrieval, which the session applies once a
// search tool is actually bound.
func ComposeSystemPrompt(personaPrompt, language, priorSummary string) string {
	var b strings.Builder
	p := strings.TrimSpace(personaPrompt)
	if p == "" {
		p = DefaultSystemPrompt
	}
	b.WriteString(p)

	if language == "" {
		language = DefaultLanguage
	}
	fmt.Fprintf(&b, "\n\nAlways respond in the language with code %q, whatever language the user speaks.", language)

	if s := strings.TrimSpace(priorSummary); s != "" {
		b.WriteString("\n\nSummary of your previous conversations with this user:\n")
		b.WriteString(s)
	}
	return b.String()
}

// WithRetrieval appends the retrieval note to a system prompt.
func WithRetrieval(systemPrompt string) string {
	if systemPrompt == "" {
		return retrievalInstruction
	}
	return systemPrompt + "\n\n" + retrievalInstruction
}
