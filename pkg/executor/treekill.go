package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/rookery/pkg/log"
)

// TreeKiller runs the kill-tree procedure for a task
type TreeKiller interface {
	Run(ctx context.Context, procedurePath, workDir string) (int, error)
}

// KillError reports a failed kill-tree run
type KillError struct {
	Path       string
	ExitStatus int // -1 when the procedure did not run to completion
	Output     string
	Err        error
}

func (e *KillError) Error() string {
	if e.ExitStatus > 0 {
		return fmt.Sprintf("kill-tree %s exited with status %d", e.Path, e.ExitStatus)
	}
	return fmt.Sprintf("kill-tree %s: %v", e.Path, e.Err)
}

func (e *KillError) Unwrap() error { return e.Err }

// ScriptTreeKiller runs a staged kill-tree executable with the task's working
// directory as its only argument. The procedure is responsible for finding
// and terminating every process in the task's tree.
type ScriptTreeKiller struct {
	logger zerolog.Logger
}

var _ TreeKiller = (*ScriptTreeKiller)(nil)

// NewScriptTreeKiller creates a new tree killer
func NewScriptTreeKiller() *ScriptTreeKiller {
	return &ScriptTreeKiller{logger: log.WithComponent("treekill")}
}

// Run executes the procedure and returns its exit status. Any failure,
// including a non-zero exit, is a *KillError.
func (k *ScriptTreeKiller) Run(ctx context.Context, procedurePath, workDir string) (int, error) {
	if procedurePath == "" {
		return -1, &KillError{Path: procedurePath, ExitStatus: -1, Err: errors.New("no kill-tree procedure configured")}
	}
	info, err := os.Stat(procedurePath)
	if err != nil {
		return -1, &KillError{Path: procedurePath, ExitStatus: -1, Err: err}
	}
	if info.IsDir() {
		return -1, &KillError{Path: procedurePath, ExitStatus: -1, Err: errors.New("procedure is a directory")}
	}

	cmd := exec.CommandContext(ctx, procedurePath, workDir)
	cmd.Dir = workDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err = cmd.Run()
	out := strings.TrimSpace(output.String())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return exitErr.ExitCode(), &KillError{
				Path:       procedurePath,
				ExitStatus: exitErr.ExitCode(),
				Output:     out,
				Err:        err,
			}
		}
		return -1, &KillError{Path: procedurePath, ExitStatus: -1, Output: out, Err: err}
	}

	k.logger.Debug().Str("procedure", procedurePath).Str("work_dir", workDir).Msg("Kill-tree completed")
	return 0, nil
}
