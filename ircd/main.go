package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/presbrey/ircserv/admind"
	"github.com/presbrey/ircserv/config"
	"github.com/presbrey/ircserv/irc"
	"github.com/presbrey/ircserv/metrics"
	"github.com/presbrey/ircserv/transport"
)

func main() {
	// Define command-line flags
	configSource := flag.String("config", "", "Configuration file or URL (YAML, TOML, or JSON)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := loadConfig(*configSource)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *debug {
		cfg.Debug = true
	}

	// The classic positional form overrides every other source.
	if err := applyArgs(cfg, flag.Args()); err != nil {
		log.Printf("Invalid arguments: %v", err)
		log.Fatalf("Usage: %s [flags] <port> <password>", os.Args[0])
	}

	if cfg.Password == "" {
		log.Fatalf("A connection password is required: pass it as the second argument or set IRCD_PASSWORD")
	}

	if cfg.Debug {
		log.SetFlags(log.Lshortfile | log.Lmicroseconds)
	}

	// Log startup configuration
	log.Printf("Starting IRC server with the following configuration:")
	log.Printf("Server name: %s", cfg.ServerName)
	log.Printf("Bind address: %s", cfg.ListenAddr())
	log.Printf("Admin surface: enabled=%v address=%s metrics=%v", cfg.Admin.Enabled, cfg.AdminAddr(), cfg.Admin.Metrics)
	log.Printf("Operators: %d", len(cfg.Operators))
	log.Printf("Debug logging: %v", cfg.Debug)

	tr, err := transport.NewTCP(cfg.Host, cfg.Port)
	if err != nil {
		log.Fatalf("Failed to open the listener: %v", err)
	}

	m := metrics.New()
	server := irc.NewServer(cfg, tr, m)

	var admin *admind.Server
	if cfg.Admin.Enabled {
		admin = admind.New(cfg, server, m)
		go func() {
			if err := admin.Start(); err != nil {
				log.Printf("Admin server error: %v", err)
			}
		}()
		log.Printf("Admin server listening on %s", cfg.AdminAddr())
	}

	// Wait for a termination signal in the background
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received %s, stopping server...", sig)
		server.Stop()
	}()

	if err := server.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	if admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := admin.Shutdown(ctx); err != nil {
			log.Printf("Error stopping admin server: %v", err)
		}
	}

	log.Println("Server stopped. Goodbye!")
}

// loadConfig reads the given file or URL, or falls back to environment
// variables over the built-in defaults.
func loadConfig(source string) (*config.Config, error) {
	if source != "" {
		return config.Load(source)
	}
	return config.FromEnv()
}

// applyArgs applies the positional invocation: port, then password.
func applyArgs(cfg *config.Config, args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("unexpected arguments: %v", args[2:])
	}
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		if port < 1024 || port > 65535 {
			return fmt.Errorf("port must be between 1024 and 65535, got %d", port)
		}
		cfg.Port = port
	}
	if len(args) > 1 {
		cfg.Password = args[1]
	}
	return nil
}
