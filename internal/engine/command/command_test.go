package command_test

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraread/speech-service/internal/engine/command"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	_, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
}

func TestExec_RunFeedsStdin(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	output, err := command.Exec{}.Run(context.Background(), "hello speech", "sh", "-c", "cat")
	require.NoError(t, err)
	assert.Equal(t, "hello speech", string(output))
}

func TestExec_RunReportsStderr(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	_, err := command.Exec{}.Run(context.Background(), "", "sh", "-c", "echo broken voice >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sh execution failed")
	assert.Contains(t, err.Error(), "broken voice")
}

func TestFindFirst(t *testing.T) {
	t.Parallel()

	lookPath := func(name string) (string, error) {
		if name == "espeak" {
			return "/usr/bin/espeak", nil
		}

		return "", errors.New("not found")
	}

	path, err := command.FindFirst(lookPath, "espeak-ng", "espeak")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/espeak", path)

	_, missingErr := command.FindFirst(lookPath, "say")
	require.ErrorIs(t, missingErr, command.ErrNotFound)
	assert.Contains(t, missingErr.Error(), "say")
}
