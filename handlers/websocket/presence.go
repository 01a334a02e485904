package websocket

import (
	"sort"
	"sync"
	"time"

	"canvas-server/core"
)

type roomState struct {
	viewers    int
	lastActive int64
}

// Presence counts the sessions viewing each canvas.
type Presence struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	now   func() time.Time
}

func NewPresence() *Presence {
	return &Presence{
		rooms: make(map[string]*roomState),
		now:   time.Now,
	}
}

func (p *Presence) Join(canvasID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	room, ok := p.rooms[canvasID]
	if !ok {
		room = &roomState{}
		p.rooms[canvasID] = room
	}
	room.viewers++
	room.lastActive = p.now().UnixMilli()
}

func (p *Presence) Leave(canvasID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	room, ok := p.rooms[canvasID]
	if !ok {
		return
	}
	room.viewers--
	if room.viewers <= 0 {
		delete(p.rooms, canvasID)
	}
}

// Touch records activity on a canvas that has viewers.
func (p *Presence) Touch(canvasID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if room, ok := p.rooms[canvasID]; ok {
		room.lastActive = p.now().UnixMilli()
	}
}

func (p *Presence) Viewers(canvasID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if room, ok := p.rooms[canvasID]; ok {
		return room.viewers
	}
	return 0
}

// Rooms lists open canvases, busiest first, then most recently active.
func (p *Presence) Rooms() []core.Room {
	p.mu.RLock()
	rooms := make([]core.Room, 0, len(p.rooms))
	for id, room := range p.rooms {
		rooms = append(rooms, core.Room{
			ID:         id,
			Viewers:    room.viewers,
			LastActive: room.lastActive,
		})
	}
	p.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Viewers != rooms[j].Viewers {
			return rooms[i].Viewers > rooms[j].Viewers
		}
		if rooms[i].LastActive != rooms[j].LastActive {
			return rooms[i].LastActive > rooms[j].LastActive
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}
