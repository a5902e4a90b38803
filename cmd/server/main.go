package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kaipiao/agent/internal/api"
	"kaipiao/agent/internal/catalog"
	"kaipiao/agent/internal/config"
	"kaipiao/agent/internal/conversation"
	"kaipiao/agent/internal/interpret"
	"kaipiao/agent/internal/receipt"
	"kaipiao/agent/internal/transcribe"
	"kaipiao/agent/internal/voicews"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	cat := catalog.Seed(catalog.NewStore())
	receipts := receipt.NewStore(cfg.Receipt.NumberPrefix)
	interpreter := interpret.New(cat)
	mgr := conversation.NewManager(interpreter, receipts)

	stt := transcribe.NewHTTP(cfg.STT.URL, cfg.STT.APIKey, time.Duration(cfg.STT.TimeoutMs)*time.Millisecond)

	h := api.NewHandlers(cfg, mgr, cat, receipts)
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))

	// Voice channel
	reg := voicews.NewRegistry()
	vws := voicews.NewServer(cfg, mgr, stt, reg)
	mux.HandleFunc("/ws/voice", vws.HandleVoiceWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		for _, id := range mgr.ListIDs() {
			_ = mgr.End(id)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Printf("server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
