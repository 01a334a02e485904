package stores

import (
	"context"
	"fmt"

	"canvas-server/config"
	"canvas-server/core"
	"canvas-server/stores/aws"
	"canvas-server/stores/filesystem"
	"canvas-server/stores/memory"
	"canvas-server/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore builds the canvas store selected by cfg.Type. Backends that hold
// resources implement io.Closer.
func GetStore(ctx context.Context, cfg config.Storage) (core.CanvasStore, error) {
	var (
		store core.CanvasStore
		err   error
	)

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "", "sqlite":
		storageField["storageType"] = "sqlite"
		storageField["dataSourceName"] = cfg.DBPath
		store, err = sqlite.NewStore(cfg.DBPath)
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		store, err = filesystem.NewStore(cfg.LocalStoragePath)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage type")
		}
		storageField["bucketName"] = cfg.S3Bucket
		store, err = aws.NewStore(ctx, cfg.S3Bucket, cfg.S3Prefix)
	case "memory":
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
