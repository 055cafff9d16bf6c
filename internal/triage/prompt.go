package triage

import (
	"fmt"
	"strings"
)

// Length bounds for the fields embedded in a prompt, in runes.
const (
	maxSenderLen  = 200
	maxSubjectLen = 300
	maxSnippetLen = 1000
)

// SystemPrompt is sent alongside every analysis prompt.
const SystemPrompt = "You are an executive assistant that triages email. Return ONLY valid JSON."

// PromptTemplate asks for one JSON object describing a single email.
// Placeholders: sender, subject, snippet.
const PromptTemplate = `Analyze this email:
Sender: %s | Subject: %s | Snippet: %s

Tasks:
1. Category: (Work, Social, Promotion, Finance, Personal, or Other)
2. Priority: (High, Medium, or Low)
3. Meeting: Is this a meeting/event request? (Yes/No)
4. Reply: Draft a 2-sentence professional response.

Return ONLY JSON:
{"category": "string", "priority": "High/Medium/Low", "meeting": "Yes/No", "reply": "string"}`

// BuildPrompt renders the analysis prompt for one item.
func BuildPrompt(item *EmailItem) string {
	return fmt.Sprintf(PromptTemplate,
		bound(item.Sender, maxSenderLen),
		bound(item.Subject, maxSubjectLen),
		bound(item.Snippet, maxSnippetLen),
	)
}

// bound flattens newlines and truncates s to n runes.
func bound(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
