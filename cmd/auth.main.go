package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/server"
)

func main() {
	cfg := config.Load()

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("auth: failed to build server: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("auth: serve: %v", err)
		}
	}()

	// graceful stop
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	srv.Shutdown()
}
