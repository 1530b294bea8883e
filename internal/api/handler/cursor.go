package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/mediaflow/internal/job"
)

// JobCursor marks the last job of a page in (createdAt, id) order.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func DecodeJobCursor(cursorStr string) (*JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &JobCursor{CreatedAt: time.Unix(0, createdAt), JobID: parts[1]}, nil
}

func EncodeJobCursor(cursor *JobCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}

// after reports whether j sorts strictly after the cursor.
func (c *JobCursor) after(j job.Job) bool {
	if cmp := j.CreatedAt.Compare(c.CreatedAt); cmp != 0 {
		return cmp > 0
	}
	return j.ID > c.JobID
}

type jobFilter struct {
	Status   job.Status
	Mode     job.Mode
	PageSize int
	Cursor   *JobCursor
}

// page selects up to PageSize+1 matching jobs after the cursor so the caller can
// tell whether another page exists. jobs must be in (createdAt, id) order.
func page(jobs []job.Job, f jobFilter) []job.Job {
	out := make([]job.Job, 0, f.PageSize+1)
	for _, j := range jobs {
		if f.Cursor != nil && !f.Cursor.after(j) {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Mode != "" && j.Mode != f.Mode {
			continue
		}
		out = append(out, j)
		if len(out) > f.PageSize {
			break
		}
	}
	return out
}
