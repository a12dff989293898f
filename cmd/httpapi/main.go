// Command httpapi serves the single-shot HTTP surface: POST /v0/check_email
// calls the pipeline directly, with no broker hop. Header authentication and
// config reload are left to an external collaborator — this entrypoint only
// enforces the body size limit and the missing-to_email 400.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mailcheck"
)

const maxBodyBytes = 16 * 1024

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, continuing with process environment")
	}

	cfg := mailcheck.NewConfig()

	addr := os.Getenv("RCH_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v0/check_email", checkEmailHandler(cfg))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  35 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 check_email HTTP API listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ server error: %v", err)
		}
	}()

	<-quit
	log.Println("⏳ shutdown signal received, draining in-flight requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ graceful shutdown failed: %v", err)
	}
	log.Println("✅ server shut down cleanly.")
}

func checkEmailHandler(cfg mailcheck.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		input := mailcheck.NewCheckEmailInput("")
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if input.ToEmail == "" {
			http.Error(w, "missing to_email", http.StatusBadRequest)
			return
		}

		out := mailcheck.CheckEmail(r.Context(), input, cfg)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			log.Printf("❌ error encoding response for %s: %v", input.ToEmail, err)
		}
	}
}
