package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"herald/announcer/internal/config"
	"herald/announcer/internal/health"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status := health.CheckAll(ctx, cfg)
	fmt.Print(status.String())
	if !status.OK {
		os.Exit(1)
	}
}
