package websocket

import (
	"io"
	"net/http"
	"time"

	"canvas-server/bus"

	gorilla "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

type SocketOptions struct {
	AllowedOrigins  []string
	MaxPayloadBytes int64
}

type wsTransport struct {
	conn *gorilla.Conn
}

func (t *wsTransport) ReadFrame() (Frame, error) {
	mt, data, err := t.conn.ReadMessage()
	if err != nil {
		if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway, gorilla.CloseNoStatusReceived) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}

	switch mt {
	case gorilla.TextMessage:
		return Frame{Kind: FrameText, Data: data}, nil
	case gorilla.BinaryMessage:
		return Frame{Kind: FrameBinary, Data: data}, nil
	}
	return Frame{Kind: FrameOther}, nil
}

func (t *wsTransport) WriteFrame(payload []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(gorilla.BinaryMessage, payload)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// HandleCanvasSocket upgrades the request to a websocket and runs a Session
// on it until the connection ends.
func HandleCanvasSocket(b *bus.Bus, presence *Presence, opts SocketOptions) http.HandlerFunc {
	allow := AllowOrigin(opts.AllowedOrigins)
	upgrader := gorilla.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// non-browser clients send no Origin
			return origin == "" || allow(r, origin)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader has already replied with an HTTP error
			logrus.WithError(err).WithField("remote_addr", r.RemoteAddr).Warn("Websocket upgrade failed")
			return
		}
		if opts.MaxPayloadBytes > 0 {
			conn.SetReadLimit(opts.MaxPayloadBytes)
		}

		session := NewSession(b, &wsTransport{conn: conn},
			WithPresence(presence),
			WithLogger(logrus.WithField("remote_addr", r.RemoteAddr)),
		)
		if err := session.Run(r.Context()); err != nil {
			logrus.WithError(err).WithField("session_id", session.ID()).Debug("Session ended")
		}
	}
}
