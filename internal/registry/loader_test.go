package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDirFiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	files := []string{"a.gguf", "b.GGUF", "not-model.txt", "model.bin"}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644))
	}
	assets, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	for _, a := range assets {
		require.True(t, strings.HasSuffix(strings.ToLower(a.ModelPath), ".gguf"))
	}
}

func TestLoadDirExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "sesscore-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	require.NoError(t, os.WriteFile(filepath.Join(hTmp, "x.gguf"), []byte(""), 0o644))

	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	assets, err := LoadDir(tildePath)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.Equal(t, "x.gguf", filepath.Base(assets[0].ModelPath))
}
