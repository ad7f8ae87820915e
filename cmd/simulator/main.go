package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/simulator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	port := pflag.Int("port", 9000, "simulator server port")
	pattern := pflag.String("pattern", "daily", "load pattern: steady, daily, weekly, random, gradual_rise, spike, sine_wave")
	baseCPU := pflag.Float64("base-cpu", 50, "base CPU percent")
	baseMemory := pflag.Float64("base-memory", 60, "base memory percent")
	logLevel := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	logger.Setup(*logLevel, "development")
	logger.Info("Starting metrics simulator")

	sim := simulator.New(simulator.Config{
		Port:       *port,
		Pattern:    *pattern,
		BaseCPU:    *baseCPU,
		BaseMemory: *baseMemory,
	})

	if err := sim.Start(); err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down simulator")
	return sim.Stop()
}
