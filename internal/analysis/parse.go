package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// decodeJSON pulls the outermost JSON object out of a model reply. Models often
// wrap it in prose or a ```json fence.
func decodeJSON(reply string, out any) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in reply")
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

type rawSection struct {
	StartPhrase string `json:"start_phrase"`
	EndPhrase   string `json:"end_phrase"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Quote       string `json:"quote"`
}

// normalizeCategory maps free-form model output onto the fixed category list.
func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	c = strings.ReplaceAll(c, " ", "-")
	if first, _, ok := strings.Cut(c, ","); ok {
		c = strings.TrimSpace(first)
	}
	if slices.Contains(Categories, c) {
		return c
	}
	return CategoryRoutine
}

var (
	datePattern      = regexp.MustCompile(`\b\d{4}[-_.]\d{2}[-_.]\d{2}\b`)
	extensionPattern = regexp.MustCompile(`\.(mp4|mov|mkv|webm|avi|m4v|mp3|wav)\b`)
	disallowedChars  = regexp.MustCompile(`[^a-z0-9 ,\-']+`)
	spaceRuns        = regexp.MustCompile(`\s+`)
)

const maxTitleLength = 100

// SanitizeTitle forces a model suggestion into the filename rules: lowercase,
// spaces, no dates or extensions, at most 100 characters cut at a word boundary.
func SanitizeTitle(s string) string {
	s = strings.TrimSpace(s)
	if line, _, ok := strings.Cut(s, "\n"); ok {
		s = line
	}
	s = strings.ToLower(strings.Trim(s, "\"'` "))
	s = extensionPattern.ReplaceAllString(s, "")
	s = datePattern.ReplaceAllString(s, "")
	s = strings.NewReplacer("_", " ", "/", " ", ":", " ").Replace(s)
	s = disallowedChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaceRuns.ReplaceAllString(s, " "))
	s = strings.Trim(s, " ,-")

	if len(s) > maxTitleLength {
		cut := s[:maxTitleLength]
		if i := strings.LastIndex(cut, " "); i > 0 {
			cut = cut[:i]
		}
		s = strings.Trim(cut, " ,-")
	}
	return s
}

// cleanTags trims, drops empties and case-insensitive duplicates.
func cleanTags(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
