// Package persistence holds the single writer of the canvas store.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"canvas-server/bus"
	"canvas-server/core"

	"github.com/sirupsen/logrus"
)

// StoreTimeout bounds a single store call.
const StoreTimeout = 10 * time.Second

// Worker consumes the bus sequentially: UpdateCanvas is written to the store
// and GetCanvas is answered by publishing CanvasData back onto the bus. It is
// the only component that touches the store, so writes to one canvas are
// applied in bus order without further locking.
type Worker struct {
	bus   *bus.Bus
	store core.CanvasStore
	sub   *bus.Subscription
	log   logrus.FieldLogger
	done  chan struct{}
}

// NewWorker subscribes immediately, so every command published after
// NewWorker returns is seen by Run.
func NewWorker(b *bus.Bus, store core.CanvasStore) *Worker {
	return &Worker{
		bus:   b,
		store: store,
		sub:   b.Subscribe(),
		log:   logrus.WithField("component", "persistence"),
		done:  make(chan struct{}),
	}
}

// Start runs the worker on its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		err := w.Run(ctx)
		switch {
		case errors.Is(err, bus.ErrClosed):
			w.log.Info("Persistence worker stopped, bus closed")
		case err != nil:
			w.log.WithError(err).Error("Persistence worker stopped")
		}
	}()
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run processes commands until ctx is cancelled (returns nil) or the bus is
// closed. Commands already buffered are still applied in both cases, and
// store calls never inherit the cancellation of ctx. Storage errors are
// logged and never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)
	defer w.sub.Close()

	w.log.Info("Persistence worker started")
	for {
		cmd, err := w.sub.Recv(ctx)
		switch {
		case err == nil:
			w.handle(ctx, cmd)
		case errors.Is(err, bus.ErrLagged):
			w.log.WithError(err).Warn("Persistence worker fell behind, commands dropped")
		case errors.Is(err, bus.ErrClosed):
			return fmt.Errorf("persistence worker: %w", err)
		case ctx.Err() != nil:
			w.log.Info("Persistence worker stopping")
			return nil
		default:
			return fmt.Errorf("persistence worker: %w", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, cmd core.Command) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), StoreTimeout)
	defer cancel()

	log := w.log.WithFields(logrus.Fields{
		"command":   cmd.Kind.String(),
		"canvas_id": cmd.CanvasID,
	})

	switch cmd.Kind {
	case core.UpdateCanvas:
		if err := w.store.Put(ctx, cmd.CanvasID, cmd.Payload); err != nil {
			log.WithError(err).WithField("payload_bytes", len(cmd.Payload)).Error("Failed to store canvas")
			return
		}
		log.WithField("payload_bytes", len(cmd.Payload)).Debug("Canvas stored")

	case core.GetCanvas:
		payload, err := w.store.Get(ctx, cmd.CanvasID)
		if err != nil {
			if !errors.Is(err, core.ErrCanvasNotFound) {
				log.WithError(err).Error("Failed to load canvas")
			}
			return
		}
		w.bus.Publish(core.NewCanvasData(cmd.CanvasID, payload))
		log.WithField("payload_bytes", len(payload)).Debug("Canvas data published")
	}
}
