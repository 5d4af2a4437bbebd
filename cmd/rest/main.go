package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"code-review-be/internal/bootstrap"
	"code-review-be/internal/config"
	"code-review-be/internal/pkg/logger"
	"code-review-be/internal/server"
	"code-review-be/internal/tracer"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Tracing
	shutdownTracer := tracer.InitTracer(ctx, cfg.App.OtelEnabled)
	defer shutdownTracer(context.Background())

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	// 3. Infrastructure
	deps, cleanup, err := bootstrap.BuildDependencies(ctx, cfg, sysLogger)
	defer cleanup()
	if err != nil {
		log.Fatalf("Unable to initialise dependencies: %v", err)
	}

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, cfg, deps)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
