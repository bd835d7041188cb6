package main

import (
	"context"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/drewfead/berlinale/internal/commands"
)

func main() {
	if logger, err := zap.NewDevelopment(); err == nil {
		zap.ReplaceGlobals(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := commands.NewApp().RunContext(ctx, os.Args); err != nil {
		stop()
		zap.L().Fatal("Fatal error", zap.Error(err))
	}
}
