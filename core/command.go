package core

import "fmt"

// CommandKind tags the variant carried by a Command.
type CommandKind uint8

const (
	// UpdateCanvas: a session pushed a new raster for a canvas.
	UpdateCanvas CommandKind = iota + 1
	// GetCanvas: a session (re)subscribed and wants the last known snapshot.
	GetCanvas
	// CanvasData answers GetCanvas with the stored snapshot.
	CanvasData
)

func (k CommandKind) String() string {
	switch k {
	case UpdateCanvas:
		return "UpdateCanvas"
	case GetCanvas:
		return "GetCanvas"
	case CanvasData:
		return "CanvasData"
	}
	return fmt.Sprintf("CommandKind(%d)", uint8(k))
}

// Command is the only value that travels on the bus.
//
// Payload is shared by reference between every consumer of a single delivery
// and must be treated as read-only once the command has been built.
type Command struct {
	Kind     CommandKind
	CanvasID string
	Payload  []byte
}

func NewUpdateCanvas(canvasID string, payload []byte) Command {
	return Command{Kind: UpdateCanvas, CanvasID: canvasID, Payload: payload}
}

func NewGetCanvas(canvasID string) Command {
	return Command{Kind: GetCanvas, CanvasID: canvasID}
}

func NewCanvasData(canvasID string, payload []byte) Command {
	return Command{Kind: CanvasData, CanvasID: canvasID, Payload: payload}
}

// CarriesRaster reports whether the command holds a payload a viewer of
// CanvasID should see.
func (c Command) CarriesRaster() bool {
	return c.Kind == UpdateCanvas || c.Kind == CanvasData
}

func (c Command) String() string {
	return fmt.Sprintf("%s{canvas_id=%q, payload=%d bytes}", c.Kind, c.CanvasID, len(c.Payload))
}
