package websocket

import "encoding/json"

type controlMessage struct {
	Type     string  `json:"type"`
	CanvasID *string `json:"canvas_id"`
}

// ParseControl decodes a "select canvas" control message such as
// {"type":"set_canvas","canvas_id":"room1"}. Any other message, including
// malformed JSON or a missing canvas_id, reports ok=false.
func ParseControl(data []byte) (canvasID string, ok bool) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", false
	}
	if msg.CanvasID == nil {
		return "", false
	}

	switch msg.Type {
	// older clients send the tag as "snake_case"
	case "set_canvas", "snake_case":
		return *msg.CanvasID, true
	}
	return "", false
}
