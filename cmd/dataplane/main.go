package main

import (
	"context"
	"flag"
	"log"

	"github.com/viralforge/dataplane/internal/app/bootstrap"
)

func main() {
	configPath := flag.String("config", "configs/default.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, *configPath)
	if err != nil {
		log.Fatalf("bootstrap dataplane runtime: %v", err)
	}
	if err := runtime.Run(ctx); err != nil {
		log.Fatalf("run dataplane: %v", err)
	}
}
