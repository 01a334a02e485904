package core

import (
	"context"
	"errors"
)

// ErrCanvasNotFound is returned by a CanvasStore when no payload has ever
// been stored for the requested canvas.
var ErrCanvasNotFound = errors.New("canvas not found")

type (
	// CanvasStore is the durable canvas_id -> payload mapping. Put replaces
	// any previous payload for the id (last write wins).
	CanvasStore interface {
		Put(ctx context.Context, canvasID string, payload []byte) error
		Get(ctx context.Context, canvasID string) ([]byte, error)
	}

	// Room is a canvas currently open by at least one session.
	Room struct {
		ID         string `json:"id"`
		Viewers    int    `json:"viewers"`
		LastActive int64  `json:"lastActive,omitempty"`
	}
)
