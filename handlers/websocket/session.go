package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"

	"canvas-server/bus"
	"canvas-server/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Session bridges one client connection and the bus.
//
// Until the client selects a canvas, raster frames are dropped. Once a canvas
// is selected, raster frames are published as UpdateCanvas and every
// UpdateCanvas or CanvasData for that canvas is written back to the client,
// including the client's own updates.
type Session struct {
	id        string
	bus       *bus.Bus
	transport Transport
	presence  *Presence
	log       logrus.FieldLogger

	canvasID   string
	subscribed bool
}

type SessionOption func(*Session)

// WithPresence makes the session report its selected canvas to p.
func WithPresence(p *Presence) SessionOption {
	return func(s *Session) {
		s.presence = p
	}
}

func WithLogger(log logrus.FieldLogger) SessionOption {
	return func(s *Session) {
		s.log = log
	}
}

func NewSession(b *bus.Bus, t Transport, opts ...SessionOption) *Session {
	s := &Session{
		id:        ulid.Make().String(),
		bus:       b,
		transport: t,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("session_id", s.id)
	return s
}

func (s *Session) ID() string {
	return s.id
}

// CanvasID returns the selected canvas, if any. Only meaningful from the
// goroutine running Run or after Run returned.
func (s *Session) CanvasID() (string, bool) {
	return s.canvasID, s.subscribed
}

// Run serves the session until the transport fails or closes, ctx is done
// or the bus goes away. A normal close by the peer or ctx cancellation
// returns nil. The transport and the bus subscription are released before
// Run returns.
func (s *Session) Run(ctx context.Context) error {
	sub := s.bus.Subscribe()
	defer sub.Close()
	defer s.transport.Close()
	defer s.leave()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan Frame)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, frames, readErr)

	s.log.Debug("Session started")
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Session cancelled")
			return nil

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				s.log.Debug("Session closed by peer")
				return nil
			}
			return fmt.Errorf("read frame: %w", err)

		case f := <-frames:
			s.handleFrame(f)

		case <-sub.Ready():
			cmd, err := sub.TryRecv()
			switch {
			case err == nil:
				if err := s.deliver(cmd); err != nil {
					return fmt.Errorf("write frame: %w", err)
				}
			case errors.Is(err, bus.ErrLagged):
				s.log.WithError(err).Debug("Session fell behind")
			case errors.Is(err, bus.ErrClosed):
				return fmt.Errorf("session: %w", err)
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context, frames chan<- Frame, readErr chan<- error) {
	for {
		f, err := s.transport.ReadFrame()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) handleFrame(f Frame) {
	switch f.Kind {
	case FrameText:
		canvasID, ok := ParseControl(f.Data)
		if !ok {
			s.log.WithField("message", truncate(f.Data, 64)).Debug("Ignoring unknown control message")
			return
		}
		s.selectCanvas(canvasID)

	case FrameBinary:
		if !s.subscribed {
			return
		}
		s.bus.Publish(core.NewUpdateCanvas(s.canvasID, f.Data))
		if s.presence != nil {
			s.presence.Touch(s.canvasID)
		}
	}
}

func (s *Session) selectCanvas(canvasID string) {
	if s.presence != nil {
		if s.subscribed {
			s.presence.Leave(s.canvasID)
		}
		s.presence.Join(canvasID)
	}
	s.canvasID = canvasID
	s.subscribed = true
	s.log = s.log.WithField("canvas_id", canvasID)
	s.log.Debug("Canvas selected")

	s.bus.Publish(core.NewGetCanvas(canvasID))
}

func (s *Session) deliver(cmd core.Command) error {
	if !s.subscribed || !cmd.CarriesRaster() || cmd.CanvasID != s.canvasID {
		return nil
	}
	return s.transport.WriteFrame(cmd.Payload)
}

func (s *Session) leave() {
	if s.presence != nil && s.subscribed {
		s.presence.Leave(s.canvasID)
	}
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
