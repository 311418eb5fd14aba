// Package main runs one-shot journal and projection maintenance.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	maintenancecmd "github.com/inkwell-app/inkwell/internal/cmd/maintenance"
)

func main() {
	cfg, err := maintenancecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[MAINTENANCE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := maintenancecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("maintenance failed: %v", err)
	}
}
