// Package command runs external tools and streams their output line by line.
package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/cuongbtq/mediaflow/internal/job"
)

// tailLines is how much output is kept for error reports.
const tailLines = 20

// Spec describes one invocation.
type Spec struct {
	Name     string
	Args     []string
	Stdin    io.Reader
	OnStdout func(line string)
	OnStderr func(line string)
}

// String renders the command line for logs.
func (s Spec) String() string {
	return strings.TrimSpace(s.Name + " " + strings.Join(s.Args, " "))
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes the command, forwarding each stdout/stderr line to the spec callbacks.
// A non-zero exit is reported as *job.ExternalProcessError.
func (ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Stdin = spec.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, &job.ExternalProcessError{Tool: spec.Name, ExitCode: -1, Err: err}
	}

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		Scan(stdout, &outBuf, spec.OnStdout)
	}()
	go func() {
		defer wg.Done()
		Scan(stderr, &errBuf, spec.OnStderr)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	result := Result{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if waitErr != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, &job.ExternalProcessError{
			Tool:     spec.Name,
			ExitCode: result.ExitCode,
			Output:   Tail(result.Stderr, tailLines),
			Err:      waitErr,
		}
	}
	return result, nil
}

// Scan copies r into buf and calls fn for every line. Carriage returns end a line
// too, so progress bars that redraw in place arrive as separate updates.
func Scan(r io.Reader, buf *bytes.Buffer, fn func(string)) {
	scanner := bufio.NewScanner(io.TeeReader(r, buf))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	scanner.Split(scanLinesCR)
	for scanner.Scan() {
		line := scanner.Text()
		if fn != nil && strings.TrimSpace(line) != "" {
			fn(line)
		}
	}
	// drain so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

func scanLinesCR(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Tail returns the last n non-empty lines of s.
func Tail(s string, n int) []string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	out := make([]string, 0, n)
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
