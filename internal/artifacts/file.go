package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore writes artifacts under <root>/MMDD/HHMM_<stage>.<ext>.
type FileStore struct{}

func (FileStore) Path(rc RunContext, stage Stage) string {
	root := rc.Root
	if root == "" {
		root = "artifacts"
	}

	day := rc.Timestamp.Format("0102")
	name := rc.Timestamp.Format("1504") + "_" + string(stage) + stage.Ext()
	return filepath.Join(root, day, name)
}

func (s FileStore) Save(ctx context.Context, rc RunContext, stage Stage, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := s.Path(rc, stage)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating artifact dir: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("writing %s artifact: %w", stage, err)
	}

	return path, nil
}
