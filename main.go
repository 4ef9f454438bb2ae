package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg := LoadConfig()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	oracle := NewClassifier(cfg)
	checker := NewMovementChecker(cfg)
	notifier := NewSlackNotifier(cfg)
	connectors := BuildConnectors(cfg)

	sched, err := StartScheduler(cfg, db, oracle, checker, notifier, connectors)
	if err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Starting Signal Intelligence Pipeline...")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down, waiting for running jobs...")
	<-sched.Stop().Done()
}
