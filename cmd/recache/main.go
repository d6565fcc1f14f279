package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/recachelabs/recache/pkg/server"
	"github.com/spf13/pflag"
)

func main() {
	address := pflag.String("address", ":5051", "Address to listen on")
	capacity := pflag.Int("capacity", 0, "Maximum number of cached entries (0 uses the server default)")
	journalPath := pflag.String("journal", "", "Journal file path (defaults to ~/.recache/journal.log)")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	pflag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	srv, err := server.New(*address, server.Options{
		Capacity:    *capacity,
		JournalPath: *journalPath,
	})
	if err != nil {
		slog.Error("Failed to create recache server", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting recache", "address", *address)
	if err := srv.Start(); err != nil && !errors.Is(err, server.ErrServerClosed) {
		slog.Error("Failed to start recache server", "error", err)
		os.Exit(1)
	}
}
