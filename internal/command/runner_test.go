package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/mediaflow/internal/job"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_StreamsLines(t *testing.T) {
	requireShell(t)

	var outLines, errLines []string
	res, err := ExecRunner{}.Run(context.Background(), Spec{
		Name:     "sh",
		Args:     []string{"-c", `printf 'a\nb\n'; printf '10%%\r20%%\r' >&2`},
		OnStdout: func(l string) { outLines = append(outLines, l) },
		OnStderr: func(l string) { errLines = append(errLines, l) },
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"a", "b"}, outLines)
	assert.Equal(t, []string{"10%", "20%"}, errLines)
}

func TestExecRunner_Stdin(t *testing.T) {
	requireShell(t)

	res, err := ExecRunner{}.Run(context.Background(), Spec{
		Name:  "sh",
		Args:  []string{"-c", "cat"},
		Stdin: strings.NewReader(`{"command":"check_dependencies"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"command":"check_dependencies"}`, res.Stdout)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	requireShell(t)

	res, err := ExecRunner{}.Run(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", "echo boom >&2; exit 3"},
	})
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.ErrorIs(t, err, job.ErrExternalProcess)

	var procErr *job.ExternalProcessError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, []string{"boom"}, procErr.Output)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), Spec{Name: "definitely-not-a-real-tool-xyz"})
	assert.ErrorIs(t, err, job.ErrExternalProcess)
}

func TestScan_SplitsOnCarriageReturn(t *testing.T) {
	var buf bytes.Buffer
	var lines []string
	Scan(strings.NewReader("x\r\ny\rz"), &buf, func(l string) { lines = append(lines, l) })
	assert.Equal(t, []string{"x", "y", "z"}, lines)
	assert.Equal(t, "x\r\ny\rz", buf.String())
}

func TestTail(t *testing.T) {
	assert.Equal(t, []string{"c", "d"}, Tail("a\nb\n\nc\nd\n", 2))
	assert.Empty(t, Tail("", 3))
}
