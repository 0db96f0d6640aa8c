package main

import (
	"log"

	"github.com/ItsMeArm00n/UBER---clone/internal/common/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := Run(cfg); err != nil {
		log.Fatalf("dispatch service exited: %v", err)
	}
}
