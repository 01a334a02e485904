package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canvas-server/bus"
	"canvas-server/config"
	"canvas-server/core"
	"canvas-server/handlers/api/canvases"
	"canvas-server/handlers/api/rooms"
	"canvas-server/handlers/websocket"
	"canvas-server/persistence"
	"canvas-server/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const shutdownTimeout = 10 * time.Second

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
}

func setupRouter(cfg config.Config, b *bus.Bus, presence *websocket.Presence) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	corsOptions := cors.Options{
		AllowOriginFunc:  websocket.AllowOrigin(cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	r.Use(cors.Handler(corsOptions))

	r.Get("/ws", websocket.HandleCanvasSocket(b, presence, websocket.SocketOptions{
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
	}))

	r.Get("/api/rooms", rooms.HandleListRooms(presence))
	r.Route("/api/canvases/{canvasId}", func(r chi.Router) {
		r.Get("/", canvases.HandleGetCanvas(b, canvases.DefaultFetchTimeout))
		r.Put("/", canvases.HandlePutCanvas(b, cfg.MaxPayloadBytes))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, healthResponse{Status: "ok", Subscribers: b.Subscribers()})
	})

	return r
}

func waitForShutdown(cancel context.CancelFunc, server *http.Server, ioo *socketio.Server, worker *persistence.Worker, b *bus.Bus, store core.CanvasStore) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")

	ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown")
	}
	ioo.Close(nil)

	// Closing the bus ends every session; the worker applies what is still
	// buffered and then stops.
	b.Close()
	select {
	case <-worker.Done():
	case <-ctx.Done():
		logrus.Warn("Persistence worker did not stop in time")
	}
	cancel()

	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close store")
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := flag.String("loglevel", cfg.LogLevel, "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", cfg.ListenAddr, "Set the server listen address")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := stores.GetStore(ctx, cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open storage")
	}

	b := bus.New(cfg.BusCapacity)
	worker := persistence.NewWorker(b, store)
	worker.Start(ctx)

	presence := websocket.NewPresence()
	r := setupRouter(cfg, b, presence)
	ioo := websocket.SetupSocketIO(ctx, b, presence, websocket.SocketOptions{
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
	})
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	server := &http.Server{
		Addr:        *listenAddr,
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	logrus.WithFields(logrus.Fields{
		"addr":         *listenAddr,
		"bus_capacity": b.Capacity(),
	}).Info("starting server")
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(cancel, server, ioo, worker, b, store)
}
