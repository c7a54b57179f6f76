package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avrdash/avrdash/internal/avr"
	"github.com/avrdash/avrdash/internal/server"
	"github.com/avrdash/avrdash/web"
)

func main() {
	configPath := flag.String("config", "/etc/avrdash/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated receiver")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] avrdash starting")

	// Load config
	cfg := server.LoadConfig(*configPath)

	if *demo {
		cfg.Receiver.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	var driver *avr.Driver
	switch cfg.Receiver.Type {
	case "serial":
		driver = openWithRetry(ctx, cfg)
		if driver == nil {
			return // shut down before the port came up
		}
	default:
		log.Println("[main] using simulated receiver")
		driver = avr.NewDriver(avr.NewDemoTransport(cfg.Zones), cfg.Zones, nil)
	}
	defer driver.Close()

	srv := server.New(cfg, driver, web.FS)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// openWithRetry attempts to open the serial receiver with exponential
// backoff. Starts at 1s, doubles each attempt up to 60s, and keeps trying
// until the port opens or the context is cancelled.
func openWithRetry(ctx context.Context, cfg *server.Config) *avr.Driver {
	opts := avr.Options{
		Path:        cfg.Receiver.PortPath,
		BaudRate:    cfg.Receiver.BaudRate,
		ReadTimeout: cfg.Receiver.ReadTimeout(),
	}

	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		driver, err := avr.Open(opts, cfg.Zones)
		if err == nil {
			log.Printf("[main] receiver connected on %s (attempt %d)", opts.Path, attempt+1)
			return driver
		}

		attempt++
		log.Printf("[main] open attempt %d failed: %v (retry in %v)", attempt, err, delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
