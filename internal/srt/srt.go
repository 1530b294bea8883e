// Package srt reads and writes SubRip subtitles and the clock strings used for sections.
package srt

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Segment is one timed line of transcript. Times are seconds from the start.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

var blockSeparator = regexp.MustCompile(`\n\s*\n`)

var timingLine = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// Parse splits SRT text into segments. Blocks with fewer than three lines or an
// unreadable timing line are skipped.
func Parse(content string) []Segment {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := blockSeparator.Split(strings.TrimSpace(content), -1)

	segments := make([]Segment, 0, len(blocks))
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}

		m := timingLine.FindStringSubmatch(strings.TrimSpace(lines[1]))
		if m == nil {
			continue
		}

		text := make([]string, 0, len(lines)-2)
		for _, l := range lines[2:] {
			if l = strings.TrimSpace(l); l != "" {
				text = append(text, l)
			}
		}

		segments = append(segments, Segment{
			Start: toSeconds(m[1], m[2], m[3], m[4]),
			End:   toSeconds(m[5], m[6], m[7], m[8]),
			Text:  strings.Join(text, " "),
		})
	}
	return segments
}

func toSeconds(h, m, s, ms string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.Atoi(s)
	// "5" means 500ms, "05" means 50ms
	ms = (ms + "00")[:3]
	millis, _ := strconv.Atoi(ms)
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000
}

// Format renders segments as SRT, numbering from 1.
func Format(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, Timestamp(seg.Start), Timestamp(seg.End), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// Timestamp formats seconds as HH:MM:SS,mmm.
func Timestamp(seconds float64) string {
	totalMs := int64(math.Round(seconds * 1000))
	if totalMs < 0 {
		totalMs = 0
	}
	h := totalMs / 3_600_000
	m := (totalMs % 3_600_000) / 60_000
	s := (totalMs % 60_000) / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Clock formats seconds as "H:MM:SS" when at least an hour, else "M:SS".
func Clock(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ParseClock reads "H:MM:SS" or "M:SS" (a fractional seconds part is accepted).
func ParseClock(value string) (float64, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", value)
	}

	var total float64
	for i, p := range parts {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock %q", value)
		}
		if i == len(parts)-1 {
			total = total*60 + n
			continue
		}
		total = total*60 + math.Trunc(n)
	}
	return total, nil
}

// PlainText joins segment texts with spaces.
func PlainText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}
