package rooms

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"canvas-server/core"
)

type staticRooms []core.Room

func (s staticRooms) Rooms() []core.Room { return s }

func TestHandleListRooms(t *testing.T) {
	handler := HandleListRooms(staticRooms{{ID: "room1", Viewers: 2, LastActive: 10}})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var rooms []core.Room
	if err := json.NewDecoder(w.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != "room1" || rooms[0].Viewers != 2 {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestHandleListRooms_Empty(t *testing.T) {
	handler := HandleListRooms(staticRooms(nil))

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want []", body)
	}
}
