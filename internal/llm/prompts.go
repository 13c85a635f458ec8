package llm

import (
	"fmt"
	"strings"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// Message is one chat turn sent to a text model.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

const answerShape = `Reply with a single JSON object and nothing else:
{"claim": "...", "finding": "...", "verdict": "...", "details": "...", "sources": [{"title": "...", "url": "..."}]}
"verdict" is two or three sentences. "details" may be several paragraphs separated by blank lines.
Use an empty list for "sources" when you have none. Never invent URLs.`

var systemPrompts = map[provider.TaskType]string{
	provider.TaskFactCheck: `You are a careful fact checker. Identify the central factual claim in the user's text,
check it against what is known, and state whether it holds up.
When search results are available to you, base the finding on them and list them as sources.`,
	provider.TaskAnalysis: `You are an analyst. Summarize the user's text, state its main point as the claim,
and give your assessment of it as the finding.`,
}

// BuildMessages renders the chat turns for a text-analysis call.
func BuildMessages(call provider.Call) []Message {
	system, ok := systemPrompts[call.Task]
	if !ok {
		system = systemPrompts[provider.TaskAnalysis]
	}
	system = fmt.Sprintf("%s\n\nWrite every field in the language with BCP 47 tag %q.\n\n%s",
		system, languageOrDefault(call.Language), answerShape)

	msgs := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: call.Content},
	}
	if call.Previous != "" {
		msgs = append(msgs,
			Message{Role: "assistant", Content: call.Previous},
			Message{Role: "user", Content: elaboration},
		)
	}
	return msgs
}

const elaboration = `Expand your previous answer. Keep the same claim and verdict, write a thorough "details"
section and include every source you relied on. Use the same JSON shape.`

// splitSystem separates the system prompt for APIs that take it out of band.
func splitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

func languageOrDefault(lang string) string {
	if lang == "" {
		return "en"
	}
	return lang
}

// promptText joins every message for token estimation.
func promptText(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
