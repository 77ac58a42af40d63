package llm

import (
	"regexp"
	"strings"
)

var reFenced = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// StripCodeFences returns the body of the first ```json or bare ``` fence, or
// the trimmed content when there is none. An unterminated leading fence is
// dropped too.
func StripCodeFences(content string) string {
	if m := reFenced.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// truncate is used for log fields carrying provider output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
