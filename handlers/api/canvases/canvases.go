package canvases

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"canvas-server/bus"
	"canvas-server/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// DefaultFetchTimeout bounds how long HandleGetCanvas waits for the
// persistence worker to answer.
const DefaultFetchTimeout = 2 * time.Second

type UpdateResponse struct {
	CanvasID string `json:"canvas_id"`
	Bytes    int    `json:"bytes"`
}

func canvasID(r *http.Request) string {
	id := chi.URLParam(r, "canvasId")
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

// HandleGetCanvas returns the latest stored raster of a canvas. The request
// goes through the bus like a session's GetCanvas, so the store stays owned
// by the persistence worker. A canvas that was never updated gets no answer
// and the handler replies 404 once timeout expires.
func HandleGetCanvas(b *bus.Bus, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id := canvasID(r)
		log := logrus.WithField("canvas_id", id)

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		sub := b.Subscribe()
		defer sub.Close()
		b.Publish(core.NewGetCanvas(id))

		for {
			cmd, err := sub.Recv(ctx)
			switch {
			case err == nil:
				if cmd.Kind != core.CanvasData || cmd.CanvasID != id {
					continue
				}
				w.Header().Set("Content-Type", "application/octet-stream")
				if _, err := w.Write(cmd.Payload); err != nil {
					log.WithError(err).Debug("Failed to write canvas response")
				}
				return
			case errors.Is(err, bus.ErrLagged):
				continue
			case errors.Is(err, context.DeadlineExceeded):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "Canvas not found"})
				return
			default:
				log.WithError(err).Warn("Failed to fetch canvas")
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, map[string]string{"error": "Canvas unavailable"})
				return
			}
		}
	}
}

// HandlePutCanvas publishes the request body as the new raster of a canvas,
// exactly like a binary frame from a session. The write is asynchronous.
func HandlePutCanvas(b *bus.Bus, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := canvasID(r)

		body := io.Reader(r.Body)
		if maxBytes > 0 {
			body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		payload, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				render.Status(r, http.StatusRequestEntityTooLarge)
				render.JSON(w, r, map[string]string{"error": "Canvas too large"})
				return
			}
			logrus.WithError(err).WithField("canvas_id", id).Error("Failed to read request body")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		b.Publish(core.NewUpdateCanvas(id, payload))

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, UpdateResponse{CanvasID: id, Bytes: len(payload)})
	}
}
