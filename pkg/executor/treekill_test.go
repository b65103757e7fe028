package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(dir, "killtree.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestScriptTreeKillerSuccess(t *testing.T) {
	dir := t.TempDir()
	workDir := t.TempDir()
	script := writeScript(t, dir, `echo "$1" > "$1/killed"`)

	status, err := NewScriptTreeKiller().Run(context.Background(), script, workDir)
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	data, err := os.ReadFile(filepath.Join(workDir, "killed"))
	require.NoError(t, err)
	assert.Equal(t, workDir+"\n", string(data))
}

func TestScriptTreeKillerNonZeroExit(t *testing.T) {
	script := writeScript(t, t.TempDir(), `echo "still alive" >&2; exit 3`)

	status, err := NewScriptTreeKiller().Run(context.Background(), script, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 3, status)

	var killErr *KillError
	require.True(t, errors.As(err, &killErr))
	assert.Equal(t, 3, killErr.ExitStatus)
	assert.Equal(t, "still alive", killErr.Output)
	assert.Contains(t, killErr.Error(), "status 3")
}

func TestScriptTreeKillerMissingProcedure(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"missing", filepath.Join(t.TempDir(), "nope.sh")},
		{"directory", t.TempDir()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := NewScriptTreeKiller().Run(context.Background(), tt.path, t.TempDir())
			require.Error(t, err)
			assert.Equal(t, -1, status)

			var killErr *KillError
			require.True(t, errors.As(err, &killErr))
			assert.Equal(t, -1, killErr.ExitStatus)
		})
	}
}
