package memory

import (
	"bytes"
	"context"
	"sync"

	"canvas-server/core"

	"github.com/sirupsen/logrus"
)

// memStore keeps canvases in process memory. Nothing survives a restart;
// it exists for tests and throwaway deployments.
type memStore struct {
	mu       sync.RWMutex
	canvases map[string][]byte
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{canvases: make(map[string][]byte)}
}

func (s *memStore) Put(ctx context.Context, canvasID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canvases[canvasID] = bytes.Clone(payload)
	logrus.WithFields(logrus.Fields{
		"canvas_id":     canvasID,
		"payload_bytes": len(payload),
	}).Debug("Canvas stored")
	return nil
}

func (s *memStore) Get(ctx context.Context, canvasID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.canvases[canvasID]
	if !ok {
		return nil, core.ErrCanvasNotFound
	}
	return payload, nil
}
