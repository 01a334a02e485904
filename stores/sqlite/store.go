package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"canvas-server/core"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the SQLite database at dataSourceName
// and ensures the canvas table exists.
func NewStore(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// the persistence worker is the only writer; one connection is enough
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create canvas table: %w", err)
	}

	logrus.WithField("dataSourceName", dataSourceName).Debug("SQLite canvas store ready")
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, canvasID string, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO canvas (canvas_id, canvas_data, updated_at) VALUES (?, ?, ?)",
		canvasID, payload, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store canvas %q: %w", canvasID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, canvasID string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT canvas_data FROM canvas WHERE canvas_id = ?", canvasID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrCanvasNotFound
		}
		return nil, fmt.Errorf("load canvas %q: %w", canvasID, err)
	}
	return payload, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
