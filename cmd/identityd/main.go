// Command identityd runs a node identity described by identity.yaml.
//
// The configuration file is taken from -config, then IDENTITY_CONFIG, then
// the nearest identity.yaml above the working directory.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zero-day-ai/identity"
	"github.com/zero-day-ai/identity/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("IDENTITY_CONFIG"), "path to identity.yaml or a directory containing it")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	node, err := identity.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}
	defer node.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Run(ctx); err != nil {
		log.Printf("Node stopped with error: %v", err)
		node.Close()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromDir(".")
}
