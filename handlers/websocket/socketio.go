package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"regexp"
	"sync"

	"canvas-server/bus"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// socket.io events. A client selects a canvas with "set-canvas" (the canvas
// id as a string), sends rasters with "canvas-update" and receives the
// rasters of its canvas as "canvas-data".
const (
	setCanvasEvent    = "set-canvas"
	canvasUpdateEvent = "canvas-update"
	canvasDataEvent   = "canvas-data"
	disconnectEvent   = "disconnect"
)

type socketIOTransport struct {
	emit       func(event string, args ...any) error
	disconnect func()

	frames chan Frame
	closed chan struct{}
	once   sync.Once
}

func newSocketIOTransport(socket *socketio.Socket) *socketIOTransport {
	return &socketIOTransport{
		emit: socket.Emit,
		disconnect: func() {
			socket.Disconnect(true)
		},
		frames: make(chan Frame),
		closed: make(chan struct{}),
	}
}

// handle turns one socket event into a frame for the session.
func (t *socketIOTransport) handle(event string, datas ...any) {
	switch event {
	case disconnectEvent:
		t.peerClosed()
		return
	}
	if len(datas) == 0 {
		return
	}

	switch event {
	case setCanvasEvent:
		t.push(controlFromArg(datas[0]))
	case canvasUpdateEvent:
		t.push(rasterFromArg(datas[0]))
	}
}

// push blocks the socket's event dispatch until the session takes the frame.
func (t *socketIOTransport) push(f Frame) {
	select {
	case t.frames <- f:
	case <-t.closed:
	}
}

func (t *socketIOTransport) peerClosed() {
	t.once.Do(func() { close(t.closed) })
}

func (t *socketIOTransport) ReadFrame() (Frame, error) {
	select {
	case f := <-t.frames:
		return f, nil
	case <-t.closed:
		return Frame{}, io.EOF
	}
}

func (t *socketIOTransport) WriteFrame(payload []byte) error {
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}
	return t.emit(canvasDataEvent, payload)
}

func (t *socketIOTransport) Close() error {
	t.peerClosed()
	if t.disconnect != nil {
		t.disconnect()
	}
	return nil
}

// controlFromArg wraps a set-canvas id into the control message a session
// understands.
func controlFromArg(arg any) Frame {
	canvasID, ok := arg.(string)
	if !ok {
		return Frame{Kind: FrameOther}
	}
	data, err := json.Marshal(controlMessage{Type: "set_canvas", CanvasID: &canvasID})
	if err != nil {
		return Frame{Kind: FrameOther}
	}
	return Frame{Kind: FrameText, Data: data}
}

func rasterFromArg(arg any) Frame {
	switch v := arg.(type) {
	case []byte:
		return Frame{Kind: FrameBinary, Data: bytes.Clone(v)}
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return Frame{Kind: FrameOther}
		}
		return Frame{Kind: FrameBinary, Data: data}
	}
	return Frame{Kind: FrameOther}
}

func corsOrigins(allowed []string) any {
	if len(allowed) == 0 {
		return []any{regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)}
	}
	origins := make([]any, 0, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		origins = append(origins, o)
	}
	return origins
}

// SetupSocketIO serves canvas sessions over socket.io. Sessions end when
// their socket disconnects or ctx is done.
func SetupSocketIO(ctx context.Context, b *bus.Bus, presence *Presence, opts SocketOptions) *socketio.Server {
	sopts := socketio.DefaultServerOptions()
	if opts.MaxPayloadBytes > 0 {
		sopts.SetMaxHttpBufferSize(opts.MaxPayloadBytes)
	}
	sopts.SetPath("/socket.io")
	sopts.SetAllowEIO3(true)
	sopts.SetCors(&types.Cors{
		Origin:      corsOrigins(opts.AllowedOrigins),
		Credentials: true,
	})
	srv := socketio.NewServer(nil, sopts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		transport := newSocketIOTransport(socket)
		log := logrus.WithField("socket_id", socket.Id())

		for _, event := range []string{setCanvasEvent, canvasUpdateEvent, disconnectEvent} {
			event := event
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(event, func(datas ...any) {
				transport.handle(event, datas...)
				if event == disconnectEvent {
					socket.RemoveAllListeners("")
				}
			})
		}

		session := NewSession(b, transport, WithPresence(presence), WithLogger(log))
		go func() {
			if err := session.Run(ctx); err != nil {
				log.WithError(err).Debug("Session ended")
			}
		}()
	})

	return srv
}
