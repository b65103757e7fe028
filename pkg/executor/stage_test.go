package executor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageKillTreeLocal(t *testing.T) {
	src := filepath.Join(t.TempDir(), "killtree.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\nexit 0\n"), 0644))
	root := filepath.Join(t.TempDir(), "tasks")

	path, err := StageKillTree(context.Background(), src, root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "killtree.sh"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should not be left behind")
}

func TestStageKillTreeHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scripts/kt.sh" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "#!/bin/sh\n")
	}))
	defer srv.Close()
	root := t.TempDir()

	path, err := StageKillTree(context.Background(), srv.URL+"/scripts/kt.sh", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "kt.sh"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(data))

	_, err = StageKillTree(context.Background(), srv.URL+"/missing.sh", root)
	assert.Error(t, err)
}

func TestStageKillTreeErrors(t *testing.T) {
	_, err := StageKillTree(context.Background(), "", t.TempDir())
	assert.Error(t, err)

	_, err = StageKillTree(context.Background(), filepath.Join(t.TempDir(), "absent.sh"), t.TempDir())
	assert.Error(t, err)
}
