//go:build unix

package cmdrun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Success(t *testing.T) {
	res, err := Run(context.Background(), 5*time.Second, "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestRun_NonZeroExit(t *testing.T) {
	_, err := Run(context.Background(), 5*time.Second, "sh", "-c", "echo first >&2; echo second >&2; exit 3")
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.False(t, exitErr.TimedOut)
	assert.Contains(t, err.Error(), "first")
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), 100*time.Millisecond, "sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.True(t, exitErr.TimedOut)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := Run(context.Background(), time.Second, "definitely-not-a-real-binary-xyz")
	require.Error(t, err)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, -1, exitErr.ExitCode)
}

func TestDiagnostic(t *testing.T) {
	out := "\nERROR: one\n\n  two  \nthree\nfour\n"
	assert.Equal(t, "ERROR: one; two; three", Diagnostic(out, 3))
	assert.Equal(t, "ERROR: one", Diagnostic(out, 1))
	assert.Equal(t, "", Diagnostic("", 3))
}
