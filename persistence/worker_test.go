package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"canvas-server/bus"
	"canvas-server/core"
	"canvas-server/stores/memory"
	"canvas-server/stores/sqlite"
)

// flakyStore fails the first failPuts writes.
type flakyStore struct {
	core.CanvasStore
	mu       sync.Mutex
	failPuts int
	puts     int
}

func (f *flakyStore) Put(ctx context.Context, id string, payload []byte) error {
	f.mu.Lock()
	f.puts++
	fail := f.puts <= f.failPuts
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.CanvasStore.Put(ctx, id, payload)
}

func startWorker(t *testing.T, b *bus.Bus, store core.CanvasStore) *Worker {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(b, store)
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return w
}

// nextCanvasData returns the next CanvasData seen on sub.
func nextCanvasData(t *testing.T, sub *bus.Subscription) core.Command {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		cmd, err := sub.Recv(ctx)
		if err != nil {
			t.Fatalf("waiting for CanvasData: %v", err)
		}
		if cmd.Kind == core.CanvasData {
			return cmd
		}
	}
}

func TestWorker_LastWriteWins(t *testing.T) {
	b := bus.New(64)
	store := memory.NewStore()
	startWorker(t, b, store)

	observer := b.Subscribe()
	defer observer.Close()

	for _, p := range []string{"b1", "b2", "b3"} {
		b.Publish(core.NewUpdateCanvas("room1", []byte(p)))
	}
	b.Publish(core.NewGetCanvas("room1"))

	cmd := nextCanvasData(t, observer)
	if cmd.CanvasID != "room1" || string(cmd.Payload) != "b3" {
		t.Errorf("CanvasData = %v, want room1/b3", cmd)
	}

	got, err := store.Get(context.Background(), "room1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != "b3" {
		t.Errorf("store value = %q, want b3", got)
	}
}

func TestWorker_LastWriteWinsAcrossPublishers(t *testing.T) {
	b := bus.New(256)
	store := memory.NewStore()
	startWorker(t, b, store)

	// a second subscriber records the global publish order
	recorder := b.Subscribe()
	defer recorder.Close()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				b.Publish(core.NewUpdateCanvas("room1", []byte{byte(p), byte(i)}))
			}
		}(p)
	}
	wg.Wait()
	b.Publish(core.NewGetCanvas("room1"))

	var last core.Command
	for i := 0; i < 80; i++ {
		cmd, err := recorder.TryRecv()
		if err != nil {
			t.Fatalf("TryRecv() failed: %v", err)
		}
		last = cmd
	}

	data := nextCanvasData(t, recorder)
	if string(data.Payload) != string(last.Payload) {
		t.Errorf("CanvasData payload = %v, want last published %v", data.Payload, last.Payload)
	}
}

func TestWorker_GetUnknownCanvas(t *testing.T) {
	b := bus.New(16)
	startWorker(t, b, memory.NewStore())

	observer := b.Subscribe()
	defer observer.Close()

	b.Publish(core.NewGetCanvas("never-updated"))
	b.Publish(core.NewUpdateCanvas("room1", []byte("b1")))
	b.Publish(core.NewGetCanvas("room1"))

	// the worker is sequential: had it answered the first query, that
	// answer would arrive before this one
	cmd := nextCanvasData(t, observer)
	if cmd.CanvasID != "room1" {
		t.Errorf("first CanvasData is for %q, want room1", cmd.CanvasID)
	}
}

func TestWorker_ExactlyOneResponse(t *testing.T) {
	b := bus.New(16)
	startWorker(t, b, memory.NewStore())

	observer := b.Subscribe()
	defer observer.Close()

	b.Publish(core.NewUpdateCanvas("room1", []byte("b1")))
	b.Publish(core.NewGetCanvas("room1"))
	b.Publish(core.NewUpdateCanvas("sentinel", []byte("s")))
	b.Publish(core.NewGetCanvas("sentinel"))

	first := nextCanvasData(t, observer)
	second := nextCanvasData(t, observer)
	if first.CanvasID != "room1" || string(first.Payload) != "b1" {
		t.Errorf("first CanvasData = %v", first)
	}
	if second.CanvasID != "sentinel" {
		t.Errorf("second CanvasData is for %q, want sentinel", second.CanvasID)
	}
}

func TestWorker_SurvivesStoreErrors(t *testing.T) {
	b := bus.New(16)
	store := &flakyStore{CanvasStore: memory.NewStore(), failPuts: 1}
	startWorker(t, b, store)

	observer := b.Subscribe()
	defer observer.Close()

	b.Publish(core.NewUpdateCanvas("room1", []byte("lost")))
	b.Publish(core.NewUpdateCanvas("room1", []byte("b2")))
	b.Publish(core.NewGetCanvas("room1"))

	cmd := nextCanvasData(t, observer)
	if string(cmd.Payload) != "b2" {
		t.Errorf("CanvasData payload = %q, want b2", cmd.Payload)
	}
}

func TestWorker_IgnoresCanvasData(t *testing.T) {
	b := bus.New(16)
	store := memory.NewStore()
	startWorker(t, b, store)

	observer := b.Subscribe()
	defer observer.Close()

	b.Publish(core.NewCanvasData("room1", []byte("not-stored")))
	b.Publish(core.NewUpdateCanvas("sentinel", []byte("s")))
	b.Publish(core.NewGetCanvas("sentinel"))
	nextCanvasData(t, observer) // the echoed CanvasData above
	nextCanvasData(t, observer)

	if _, err := store.Get(context.Background(), "room1"); !errors.Is(err, core.ErrCanvasNotFound) {
		t.Errorf("CanvasData was written to the store: %v", err)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	b := bus.New(16)
	w := NewWorker(b, memory.NewStore())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if b.Subscribers() != 0 {
		t.Errorf("worker subscription left on the bus")
	}
}

func TestWorker_RunStopsOnBusClose(t *testing.T) {
	b := bus.New(16)
	w := NewWorker(b, memory.NewStore())

	errc := make(chan error, 1)
	go func() { errc <- w.Run(context.Background()) }()

	b.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, bus.ErrClosed) {
			t.Errorf("Run() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after bus close")
	}
}

func newSQLiteStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "canvas.db"))
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWorker_AppliesBufferedUpdatesAfterCancel(t *testing.T) {
	b := bus.New(16)
	store := newSQLiteStore(t)
	w := NewWorker(b, store)

	b.Publish(core.NewUpdateCanvas("room1", []byte("first")))
	b.Publish(core.NewUpdateCanvas("room1", []byte("last")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	got, err := store.Get(context.Background(), "room1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != "last" {
		t.Errorf("Get() = %q, want last", got)
	}
}

func TestWorker_DrainsBeforeBusClose(t *testing.T) {
	b := bus.New(16)
	store := newSQLiteStore(t)
	w := NewWorker(b, store)

	b.Publish(core.NewUpdateCanvas("room1", []byte("b1")))
	b.Publish(core.NewUpdateCanvas("room2", []byte("b2")))
	b.Close()

	if err := w.Run(context.Background()); !errors.Is(err, bus.ErrClosed) {
		t.Fatalf("Run() error = %v, want ErrClosed", err)
	}
	for id, want := range map[string]string{"room1": "b1", "room2": "b2"} {
		got, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", id, err)
		}
		if string(got) != want {
			t.Errorf("Get(%s) = %q, want %q", id, got, want)
		}
	}
}
