package rooms

import (
	"net/http"

	"canvas-server/core"

	"github.com/go-chi/render"
)

// RoomLister reports the canvases currently open by sessions.
type RoomLister interface {
	Rooms() []core.Room
}

// HandleListRooms lists open canvases, busiest first.
func HandleListRooms(lister RoomLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := lister.Rooms()
		if rooms == nil {
			rooms = []core.Room{}
		}
		render.JSON(w, r, rooms)
	}
}
