package triage

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// FallbackReply is the draft used when the model output is unusable.
const FallbackReply = "Thanks for the email."

// FallbackJudgment is the single fail-open value for unparseable output.
func FallbackJudgment() Judgment {
	return Judgment{
		Category:    CategoryOther,
		Priority:    PriorityMedium,
		MeetingFlag: false,
		DraftReply:  FallbackReply,
		Analysis:    AnalysisFallback,
	}
}

var codeBlockRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// rawJudgment keeps each field raw so type mismatches can be detected.
type rawJudgment struct {
	Category json.RawMessage `json:"category"`
	Priority json.RawMessage `json:"priority"`
	Meeting  json.RawMessage `json:"meeting"`
	Reply    json.RawMessage `json:"reply"`
}

// TryParseJudgment parses model output into a Judgment. Values outside the
// closed category/priority sets are coerced; structural problems return a
// *ParseError.
func TryParseJudgment(content string) (Judgment, error) {
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return Judgment{}, &ParseError{Reason: "no JSON object found in response"}
	}

	var raw rawJudgment
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return Judgment{}, &ParseError{Reason: "invalid JSON", Err: err}
	}

	category, err := stringField("category", raw.Category)
	if err != nil {
		return Judgment{}, err
	}
	priority, err := stringField("priority", raw.Priority)
	if err != nil {
		return Judgment{}, err
	}
	reply, err := stringField("reply", raw.Reply)
	if err != nil {
		return Judgment{}, err
	}
	if strings.TrimSpace(reply) == "" {
		return Judgment{}, &ParseError{Reason: "empty reply"}
	}
	meeting, err := meetingField(raw.Meeting)
	if err != nil {
		return Judgment{}, err
	}

	j := Judgment{
		MeetingFlag: meeting,
		DraftReply:  strings.TrimSpace(reply),
		Analysis:    AnalysisParsed,
	}
	var ok bool
	if j.Category, ok = ParseCategory(category); !ok {
		j.Analysis = AnalysisCoerced
	}
	if j.Priority, ok = ParsePriority(priority); !ok {
		j.Analysis = AnalysisCoerced
	}
	return j, nil
}

func stringField(name string, raw json.RawMessage) (string, error) {
	if isMissing(raw) {
		return "", &ParseError{Reason: "missing " + name}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &ParseError{Reason: name + " is not a string", Err: err}
	}
	return s, nil
}

// meetingField accepts "Yes"/"No", "true"/"false" or a JSON bool. Any other
// string means no meeting.
func meetingField(raw json.RawMessage) (bool, error) {
	if isMissing(raw) {
		return false, &ParseError{Reason: "missing meeting"}
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, &ParseError{Reason: "meeting is not a string or bool", Err: err}
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "y":
		return true, nil
	}
	return false, nil
}

func isMissing(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// extractJSON finds the first JSON object in the content
func extractJSON(content string) string {
	// Look for an object between triple backticks
	matches := codeBlockRegex.FindStringSubmatch(content)
	if len(matches) > 1 {
		trimmed := strings.TrimSpace(matches[1])
		if isJSONObject(trimmed) {
			return trimmed
		}
	}

	startIdx := strings.Index(content, "{")
	if startIdx == -1 {
		return ""
	}

	// Find matching closing brace, skipping braces inside strings
	depth := 0
	inString := false
	escaped := false
	for i := startIdx; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(content[startIdx : i+1])
			}
		}
	}

	return ""
}

func isJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}
