/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the CivicBeacon points engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire award engine, query facade, and HTTP handlers
  4. Start HTTP server
  5. Wait for shutdown signal (SIGINT/SIGTERM)
  6. Gracefully drain in-flight requests

CONFIGURATION:
  -port  HTTP listen port (default 8080)
  -db    SQLite database path (default points.db, ":memory:" for ephemeral)
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicbeacon/points-engine/api"
	"github.com/civicbeacon/points-engine/store/sqlite"
)

func main() {
	port := flag.String("port", "8080", "HTTP listen port")
	dbPath := flag.String("db", "points.db", "SQLite database path")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	handler := api.NewHandler(store)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:    ":" + *port,
		Handler: router,
	}

	go func() {
		log.Printf("Points engine listening on :%s (db=%s)", *port, *dbPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
