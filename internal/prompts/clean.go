package prompts

import "strings"

// Clean turns raw model output into the final prompt string.
//
// Steps, in order: trim, strip one layer of surrounding double quotes, strip
// the first matching boilerplate prefix (case-insensitive), drop markdown
// emphasis markers, collapse whitespace, drop one trailing period.
// Clean never fails; an empty input yields an empty prompt.
func Clean(raw string) string {
	text := strings.TrimSpace(raw)
	text = stripQuotes(text)
	text = stripPrefix(text, BoilerplatePrefixes)

	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "*", "")

	text = strings.Join(strings.Fields(text), " ")

	return strings.TrimSuffix(text, ".")
}

func stripQuotes(text string) string {
	if !strings.HasPrefix(text, `"`) || !strings.HasSuffix(text, `"`) {
		return text
	}
	if len(text) < 2 {
		return ""
	}
	return text[1 : len(text)-1]
}

// stripPrefix removes the first prefix in priority order that text starts
// with, ignoring case. Later prefixes are not considered after a match.
func stripPrefix(text string, prefixes []string) string {
	for _, prefix := range prefixes {
		if len(text) < len(prefix) {
			continue
		}
		if strings.EqualFold(text[:len(prefix)], prefix) {
			return strings.TrimSpace(text[len(prefix):])
		}
	}
	return text
}
