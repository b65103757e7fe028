package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// KillTreeName is the file name of the staged kill-tree procedure
const KillTreeName = "killtree.sh"

// StageKillTree places the kill-tree procedure from source into taskRoot and
// returns its path. source is a local path or an http(s) URL. The file is
// written to a temporary name and renamed so a concurrent reader never sees a
// partial procedure.
func StageKillTree(ctx context.Context, source, taskRoot string) (string, error) {
	if source == "" {
		return "", fmt.Errorf("kill-tree source is empty")
	}
	if err := os.MkdirAll(taskRoot, 0755); err != nil {
		return "", fmt.Errorf("failed to create task root: %w", err)
	}

	name := KillTreeName
	var open func() (io.ReadCloser, error)

	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
		open = func() (io.ReadCloser, error) { return download(ctx, source) }
	} else {
		name = filepath.Base(source)
		open = func() (io.ReadCloser, error) { return os.Open(source) }
	}

	src, err := open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(taskRoot, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to copy kill-tree procedure: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write kill-tree procedure: %w", err)
	}
	if err := os.Chmod(tmpName, 0755); err != nil {
		return "", fmt.Errorf("failed to make kill-tree procedure executable: %w", err)
	}

	dest := filepath.Join(taskRoot, name)
	if err := os.Rename(tmpName, dest); err != nil {
		return "", fmt.Errorf("failed to install kill-tree procedure: %w", err)
	}
	return dest, nil
}

func download(ctx context.Context, source string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch kill-tree procedure: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch kill-tree procedure: %s", resp.Status)
	}
	return resp.Body, nil
}
