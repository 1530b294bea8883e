package analysis

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuongbtq/mediaflow/internal/job"
)

// reportWriter streams sections to the analysis report as they are found.
type reportWriter struct {
	f *os.File
	w *bufio.Writer
}

func createReport(path, title, model string, now time.Time) (*reportWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	r := &reportWriter{f: f, w: bufio.NewWriter(f)}
	rule := strings.Repeat("=", 80)
	fmt.Fprintf(r.w, "%s\nVIDEO ANALYSIS RESULTS\n%s\n\n", rule, rule)
	if title != "" {
		fmt.Fprintf(r.w, "Title: %s\n", title)
	}
	fmt.Fprintf(r.w, "Model: %s\nGenerated: %s\n\n", model, now.Format(time.RFC3339))
	return r, r.w.Flush()
}

func (r *reportWriter) section(s job.Section) error {
	span := s.StartTime
	if s.EndTime != "" {
		span += " - " + s.EndTime
	}
	fmt.Fprintf(r.w, "**%s - %s [%s]**\n\n", span, s.Description, s.Category)
	for _, q := range s.Quotes {
		fmt.Fprintf(r.w, "%s - %q\n", q.Timestamp, q.Text)
		if q.Significance != "" {
			fmt.Fprintf(r.w, "   -> %s\n", q.Significance)
		}
		r.w.WriteString("\n")
	}
	r.w.WriteString(strings.Repeat("-", 80) + "\n\n")
	return r.w.Flush()
}

func (r *reportWriter) summary(description string, people, topics []string) error {
	if description != "" {
		fmt.Fprintf(r.w, "SUMMARY\n%s\n\n", description)
	}
	if len(people) > 0 {
		fmt.Fprintf(r.w, "People: %s\n", strings.Join(people, ", "))
	}
	if len(topics) > 0 {
		fmt.Fprintf(r.w, "Topics: %s\n", strings.Join(topics, ", "))
	}
	return r.w.Flush()
}

func (r *reportWriter) Close() error {
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
