// Package main provides the entry point for the voicepipe realtime voice client application.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/calyptra/voicepipe/internal/app"
	"github.com/calyptra/voicepipe/internal/audio"
	"github.com/calyptra/voicepipe/internal/config"
	"github.com/calyptra/voicepipe/internal/infrastructure"
	"github.com/calyptra/voicepipe/internal/realtime"
	"github.com/calyptra/voicepipe/internal/session"
	"github.com/calyptra/voicepipe/internal/transcript"
	pkginfra "github.com/calyptra/voicepipe/pkg/infrastructure"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	application := app.New(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,

		// Pipeline modules
		audio.Module,
		transcript.Module,
		realtime.Module,
		session.Module,

		// Supply the config path
		fx.Supply(*configPath),

		// Configure Fx to use our Zap logger for its own internal logging
		fx.WithLogger(pkginfra.NewFxLoggerAdapter),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go application.Run()

	sig := <-sigCh
	fmt.Printf("Received signal: %s, initiating shutdown.\n", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	err := application.Stop(shutdownCtx)
	cancel()

	if err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Application has shut down gracefully.")
}
