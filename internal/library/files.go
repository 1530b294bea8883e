package library

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// hashFile returns the hex sha256 of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PseudoHash identifies a file without reading it, for records created when a
// real import is not possible.
func PseudoHash(name string, size int64, modTime time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%d", name, size, modTime.Unix()))
	return "pseudo-" + hex.EncodeToString(sum[:16])
}

var (
	dashedDate  = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})[-_.](\d{2})[-_.](\d{2})(?:[^0-9]|$)`)
	compactDate = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(\d{2})(\d{2})(?:[^0-9]|$)`)
)

// InferUploadDate looks for a date in the file name, then in the parent
// directories, and returns it as YYYY-MM-DD or "" when none is found.
func InferUploadDate(path string) string {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if d := findDate(parts[i]); d != "" {
			return d
		}
	}
	return ""
}

func findDate(s string) string {
	for _, re := range []*regexp.Regexp{dashedDate, compactDate} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		d := m[1] + "-" + m[2] + "-" + m[3]
		if _, err := time.Parse(time.DateOnly, d); err == nil {
			return d
		}
	}
	return ""
}
