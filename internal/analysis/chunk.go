package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/mediaflow/internal/srt"
)

// ChunkWindow is the transcript span sent to the model per request.
const ChunkWindow = 5 * time.Minute

// Chunk is a window of consecutive segments.
type Chunk struct {
	Number   int
	Start    float64
	End      float64
	Text     string
	Segments []srt.Segment
}

// Split groups segments into fixed windows by start time. Empty windows are dropped.
// Without segments the plain text becomes a single chunk.
func Split(segments []srt.Segment, text string, window time.Duration) []Chunk {
	if len(segments) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []Chunk{{Number: 1, Text: strings.TrimSpace(text)}}
	}

	size := window.Seconds()
	total := segments[len(segments)-1].End

	var (
		chunks []Chunk
		slot   = -1
	)
	for _, seg := range segments {
		n := int(seg.Start / size)
		if n != slot {
			slot = n
			chunks = append(chunks, Chunk{
				Number: len(chunks) + 1,
				Start:  float64(n) * size,
				End:    min(float64(n+1)*size, total),
			})
		}
		c := &chunks[len(chunks)-1]
		c.Segments = append(c.Segments, seg)
	}
	for i := range chunks {
		chunks[i].Text = srt.PlainText(chunks[i].Segments)
	}
	return chunks
}

// Timestamped renders segments as "[M:SS] text" lines.
func Timestamped(segments []srt.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "[%s] %s\n", srt.Clock(s.Start), strings.TrimSpace(s.Text))
	}
	return b.String()
}
