package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"roomchat-backend/config"
	"roomchat-backend/handlers"
	"roomchat-backend/repository"
	"roomchat-backend/services"
	"roomchat-backend/ws"
)

// loggingMiddleware adds request logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("Started %s %s", r.Method, r.URL.Path)

		next.ServeHTTP(w, r)

		log.Printf("Completed %s %s in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env file not found, using environment defaults: %v", err)
	}

	cfg := config.Load()
	log.Printf("Starting room chat server on port %s", cfg.Port)

	// --- repos (in-memory, lifecycle bound to process uptime) ---
	connRepo := repository.NewInMemoryConnectionRepo()
	roomRepo := repository.NewInMemoryRoomRepo()
	messageRepo := repository.NewInMemoryMessageRepo(cfg.HistoryLimit)

	// --- websocket hub ---
	hub := ws.NewHub(cfg.AllowedOrigins)

	// --- services ---
	presenceSvc := services.NewPresenceService(connRepo, hub)
	roomSvc := services.NewRoomService(roomRepo, connRepo, messageRepo, presenceSvc, hub)
	msgSvc := services.NewMessageService(messageRepo, roomRepo, connRepo, hub, cfg.MaxMessageLength)

	// --- event dispatch ---
	eventH := handlers.NewEventHandler(roomSvc, msgSvc, presenceSvc, connRepo, hub)
	hub.SetSink(eventH)
	go hub.Run()

	// --- http surface ---
	roomH := handlers.NewRoomHandler(hub, roomSvc)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	})
	router.HandleFunc("/api/rooms", roomH.List).Methods("GET")
	router.HandleFunc("/ws", roomH.WS)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           300,
		AllowCredentials: true,
	})
	handler := c.Handler(loggingMiddleware(router))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Room chat server running on http://localhost:%s", cfg.Port)
		log.Printf("WS endpoint: ws://localhost:%s/ws", cfg.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
