package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"raffler/cmd"
	"raffler/database"

	log "github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error: ", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "force-draw":
		err = cmd.ForceDraw(ctx)
	case len(os.Args) > 1 && os.Args[1] == "retry-payout":
		if len(os.Args) < 3 {
			log.Fatal("usage: raffler retry-payout <drawId>")
		}
		err = cmd.RetryPayout(ctx, os.Args[2])
	case len(os.Args) > 1:
		log.Fatalf("unknown command: %s", os.Args[1])
	default:
		err = cmd.Run(ctx)
	}
	if err != nil {
		log.Fatal("Application error: ", err)
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: raffler migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
