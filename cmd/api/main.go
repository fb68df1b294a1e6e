package main

import (
	"log"

	"appgen-backend/internal/bootstrap"
	"appgen-backend/internal/shared/config"
	"appgen-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	if err := app.Sweeper.Start(); err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	defer app.Sweeper.Stop()

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
