// Package registry provides two related facilities: asset discovery
// (scanning a directory for model files, §6 ModelAssets) and the
// thread-safe Resource Registry described in spec §4.1.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modeld/internal/common/fsutil"
	"modeld/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a candidate asset
// list from filenames. Each asset carries only ModelPath, the absolute
// file path.
func LoadDir(dir string) ([]types.ModelAssets, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var assets []types.ModelAssets
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		p := filepath.Join(abs, name)
		assets = append(assets, types.ModelAssets{ModelPath: p})
	}
	return assets, nil
}
