// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/lucasreed/incognito/internal/auth"
	"github.com/lucasreed/incognito/internal/cache"
	"github.com/lucasreed/incognito/internal/handlers"
	"github.com/lucasreed/incognito/internal/middleware"
	"github.com/lucasreed/incognito/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	var st store.Store
	if os.Getenv("INCOGNITO_EPHEMERAL") == "true" {
		logger.Info("running with the in-memory store")
		st = store.NewMemory()
	} else {
		pool, err := store.Connect(context.Background())
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		st = store.NewPostgres(pool)
	}

	if os.Getenv("REDIS_ADDR") != "" {
		if err := cache.ConnectRedis(); err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		logger.Info("match event audit queue enabled")
	}

	srv := handlers.NewAPIServer(st, logger)
	logged := middleware.LogMiddleware(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", handlers.PingHandler)
	mux.HandleFunc("/health", handlers.PingHandler)

	// match operations
	mux.Handle("/match/create", logged(handlers.CreateMatchHandler(srv)))
	mux.Handle("/match/join", logged(handlers.JoinMatchHandler(srv)))
	mux.Handle("/match/leave", logged(handlers.LeaveMatchHandler(srv)))
	mux.Handle("/match/ready", logged(handlers.ReadyHandler(srv)))
	mux.Handle("/match/start", logged(handlers.StartMatchHandler(srv)))
	mux.Handle("/match/end", logged(handlers.EndMatchHandler(srv)))
	mux.Handle("/match/character", logged(handlers.ChooseCharacterHandler(srv)))
	mux.Handle("/match/forfeit", logged(handlers.ForfeitHandler(srv)))
	mux.Handle("/match/info/", logged(handlers.GetMatchHandler(srv)))

	// lobby subscription socket
	mux.Handle("/match/ws/", logged(handlers.MatchWSHandler(logger, srv)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
