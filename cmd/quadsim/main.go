// cmd/quadsim/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/health"
	"github.com/opd-ai/go-quadsim/pkg/logging"
	"github.com/opd-ai/go-quadsim/pkg/network"
)

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	configPath := flag.String("config", "config.json", "Path to configuration file")
	createDefault := flag.Bool("default", false, "Create default configuration file")
	addr := flag.String("addr", "", "Listen address host:port (overrides config)")
	flag.Parse()

	// Create default configuration file if requested
	if *createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err,
				"config_path", *configPath,
			)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file",
			"config_path", *configPath,
		)
		return
	}

	simConfig, err := loadConfig(ctx, logger, *configPath)
	if err != nil {
		logger.Error(ctx, "Failed to load configuration", err,
			"config_path", *configPath,
		)
		os.Exit(1)
	}

	envConfig, err := config.LoadConfigFromEnv()
	if err != nil {
		logger.Error(ctx, "Invalid environment configuration", err)
		os.Exit(1)
	}

	sim, err := engine.NewSimulation(simConfig, engine.WithLogger(logger))
	if err != nil {
		logger.Error(ctx, "Failed to create simulation", err)
		os.Exit(1)
	}

	server, err := network.NewStreamServer(sim, envConfig, logger)
	if err != nil {
		logger.Error(ctx, "Failed to create stream server", err)
		os.Exit(1)
	}

	healthChecker := health.NewHealthChecker()
	healthChecker.AddCheck(health.NewSimulationHealthCheck(sim.Running))
	healthChecker.AddCheck(health.NewFrameStallHealthCheck(envConfig.FrameStallThreshold, sim.LastFrameTime))
	healthChecker.AddCheck(health.NewMemoryHealthCheck(int64(envConfig.MaxMemoryMB), nil))

	listenAddr := simConfig.Server.ListenAddr()
	if *addr != "" {
		listenAddr = *addr
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	simDone := make(chan error, 1)
	go func() {
		simDone <- sim.Run(ctx)
	}()

	logger.Info(ctx, "Starting simulation server",
		"address", listenAddr,
		"mode", sim.Mode().String(),
		"particles", simConfig.Particles.Count,
		"seed", sim.Seed(),
		"frame_rate", simConfig.Server.FrameRate,
	)
	if err := server.ListenAndServe(ctx, listenAddr, newMux(sim, server, healthChecker)); err != nil {
		logger.Error(ctx, "Stream server failed", err, "address", listenAddr)
		stop()
		<-simDone
		os.Exit(1)
	}

	if err := <-simDone; err != nil {
		logger.Error(context.Background(), "Simulation stopped with error", err)
		os.Exit(1)
	}
	logger.Info(context.Background(), "Shut down cleanly", "frames", sim.Frame())
}

// loadConfig reads path, falling back to defaults when it does not exist,
// then applies environment overrides
func loadConfig(ctx context.Context, logger *logging.Logger, path string) (*config.SimulationConfig, error) {
	var simConfig *config.SimulationConfig

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info(ctx, "Configuration file not found, using default configuration",
			"config_path", path,
		)
		simConfig = config.DefaultConfig()
	} else {
		simConfig, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnvironmentOverrides(simConfig); err != nil {
		return nil, logging.WrapError(err, "apply environment overrides")
	}
	return simConfig, nil
}

// statsResponse is served at /stats
type statsResponse struct {
	Frame   uint64            `json:"frame"`
	Mode    engine.Mode       `json:"mode"`
	Seed    uint64            `json:"seed"`
	Running bool              `json:"running"`
	Viewers int               `json:"viewers"`
	Dropped uint64            `json:"dropped"`
	Stats   engine.FrameStats `json:"stats"`
}

// newMux registers the health and stats endpoints. The stream endpoint is
// added by the stream server.
func newMux(sim *engine.Simulation, server *network.StreamServer, checker *health.HealthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.LivenessHandler)
	mux.HandleFunc("/ready", checker.ReadinessHandler)
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{
			Frame:   sim.Frame(),
			Mode:    sim.Mode(),
			Seed:    sim.Seed(),
			Running: sim.Running(),
			Viewers: server.ViewerCount(),
			Dropped: server.Dropped(),
			Stats:   sim.Stats(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}
