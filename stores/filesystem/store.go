package filesystem

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"canvas-server/core"

	"github.com/sirupsen/logrus"
)

// canvas ids are arbitrary strings; encode them so they are always a single
// safe path element
var fileNames = base32.HexEncoding.WithPadding(base32.NoPadding)

type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store rooted at basePath.
func NewStore(basePath string) (*fsStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &fsStore{basePath: basePath}, nil
}

func (s *fsStore) path(canvasID string) string {
	// "_" keeps the empty id from mapping to the directory itself
	return filepath.Join(s.basePath, "_"+fileNames.EncodeToString([]byte(canvasID))+".canvas")
}

func (s *fsStore) Put(ctx context.Context, canvasID string, payload []byte) error {
	filePath := s.path(canvasID)

	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for canvas %q: %w", canvasID, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write canvas %q: %w", canvasID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync canvas %q: %w", canvasID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close canvas %q: %w", canvasID, err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		return fmt.Errorf("replace canvas %q: %w", canvasID, err)
	}

	logrus.WithFields(logrus.Fields{
		"canvas_id":     canvasID,
		"path":          filePath,
		"payload_bytes": len(payload),
	}).Debug("Canvas stored")
	return nil
}

func (s *fsStore) Get(ctx context.Context, canvasID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(canvasID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.ErrCanvasNotFound
		}
		return nil, fmt.Errorf("read canvas %q: %w", canvasID, err)
	}
	return data, nil
}
