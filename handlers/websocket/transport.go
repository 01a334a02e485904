package websocket

// FrameKind classifies an inbound transport message.
type FrameKind uint8

const (
	FrameOther FrameKind = iota
	// FrameText carries a JSON control message.
	FrameText
	// FrameBinary carries a full raster for the selected canvas.
	FrameBinary
)

// Frame is one inbound message. Data is handed over to the session and must
// not be reused by the transport afterwards.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Transport is the duplex message stream a session runs on.
//
// ReadFrame is called from one goroutine and WriteFrame/Close from another.
// ReadFrame returns io.EOF when the peer closed the stream normally. Close
// must unblock a pending ReadFrame.
type Transport interface {
	ReadFrame() (Frame, error)
	WriteFrame(payload []byte) error
	Close() error
}
