// Command ccgains computes realized short-term capital gains of
// cryptocurrency trades with first-in first-out lot accounting.
//
// Usage:
//
//	ccgains --config config.yaml
//	ccgains --trades kraken.csv,bitstamp.csv --rates rates.db --binance
//
// A trade that can't be booked, for example because a rate is missing, stops
// the run after saving the state. Fix the input and run again with --resume.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/vadiminshakov/ccgains/config"
	"github.com/vadiminshakov/ccgains/internal/app"
	"github.com/vadiminshakov/ccgains/internal/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, logger, os.Stdout).Run(ctx); err != nil {
		logger.Error("run failed", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}
