package serve

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/adrg/xdg"
	"github.com/charlievieth/fastwalk"
	getter "github.com/hashicorp/go-getter"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/registry"
)

// DefaultStageDir returns the default root for staged model artifacts.
func DefaultStageDir() string {
	return filepath.Join(xdg.CacheHome, "modelsmith", "artifacts")
}

// stageArtifacts fetches the package's artifact URI into the stage
// directory and returns the staged path and total size. Restaging an
// already fetched artifact is cheap; go-getter skips unchanged
// sources.
func (b *Builder) stageArtifacts(ctx context.Context, pkg *registry.ModelPackage) (string, int64, error) {
	root := b.stageDir
	if root == "" {
		root = DefaultStageDir()
	}
	dst := filepath.Join(root, pkg.ID, pkg.Version)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, err
	}

	client := &getter.Client{
		Ctx:  ctx,
		Src:  pkg.ArtifactURI,
		Dst:  dst,
		Mode: getter.ClientModeDir,
	}
	if err := client.Get(); err != nil {
		return "", 0, err
	}

	size, err := dirSize(dst)
	if err != nil {
		return "", 0, err
	}
	return dst, size, nil
}

// dirSize walks dir concurrently and sums regular file sizes.
func dirSize(dir string) (int64, error) {
	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total.Add(info.Size())
		return nil
	})
	return total.Load(), err
}
