package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/OrderBox/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	httpAddr := cfg.OrderBox.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunOrderWorker(ctx, cfg, defaultWorkerFactories(), workerOpts{httpAddr: httpAddr})
	if err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
