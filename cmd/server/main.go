// Package main serves the APR of the AuroraSwap NEAR-WETH staking pool over HTTP.
package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/auroraswap-apr/internal/config"
	"github.com/yourorg/auroraswap-apr/internal/logging"
	tracing "github.com/yourorg/auroraswap-apr/internal/otel"
	"github.com/yourorg/auroraswap-apr/internal/pipeline"
)

// main is the entry point for the application
func main() {
	cfg := config.Load()

	// Configure logging
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	shutdownTracer := tracing.InitTracer(cfg)

	orchestrator, closeChain, err := pipeline.Dial(context.Background(), cfg)
	if err != nil {
		shutdownTracer()
		logrus.Fatalf("Failed to wire pipeline: %v", err)
	}

	// Create and start server
	server := NewServer(cfg, orchestrator)
	server.Start()

	closeChain()
	shutdownTracer()
}
