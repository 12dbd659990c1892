package main

import (
	"log"
	"net/http"
	"time"

	"flashdeck/internal/api"
	"flashdeck/internal/config"
	"flashdeck/internal/db"
	"flashdeck/internal/services"
)

func main() {
	cfg := config.Load()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	triviaService := services.NewTriviaService(cfg.TriviaBaseURL, cfg.RetryBaseDelay, cfg.MaxRetries)
	aiService := services.NewAIService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint)
	generatorService := services.NewGeneratorService(triviaService, aiService)
	flashcardService := services.NewFlashcardService(conn)

	server := api.NewServer(generatorService, flashcardService)
	mux := http.NewServeMux()
	mux.Handle("/api", server.Handler())
	mux.Handle("/api/", server.Handler())

	log.Printf("listening on :%s", cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
