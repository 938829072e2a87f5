// pkg/config/env.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvironmentConfig holds runtime settings read from QUADSIM_* variables.
// These tune the process around the simulation rather than the simulation
// itself: listener, timeouts, circuit breaker and health thresholds.
type EnvironmentConfig struct {
	ServerAddr   string
	ServerPort   int
	MaxClients   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit Breaker Configuration
	CircuitBreakerMaxRequests         int
	CircuitBreakerInterval            time.Duration
	CircuitBreakerTimeout             time.Duration
	CircuitBreakerMaxConsecutiveFails int

	// Health Configuration
	MaxMemoryMB         int
	FrameStallThreshold time.Duration
	ShutdownTimeout     time.Duration
}

// ValidationError reports the first invalid environment setting
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets callers match ErrInvalidConfig with errors.Is
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// LoadConfigFromEnv reads the environment with defaults for anything unset
func LoadConfigFromEnv() (*EnvironmentConfig, error) {
	config := &EnvironmentConfig{
		ServerAddr:   getEnvOrDefault("QUADSIM_SERVER_ADDR", "localhost"),
		ServerPort:   getEnvAsIntOrDefault("QUADSIM_SERVER_PORT", 4680),
		MaxClients:   getEnvAsIntOrDefault("QUADSIM_MAX_CLIENTS", 32),
		ReadTimeout:  getEnvAsDurationOrDefault("QUADSIM_READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getEnvAsDurationOrDefault("QUADSIM_WRITE_TIMEOUT", 10*time.Second),

		CircuitBreakerMaxRequests:         getEnvAsIntOrDefault("QUADSIM_CB_MAX_REQUESTS", 3),
		CircuitBreakerInterval:            getEnvAsDurationOrDefault("QUADSIM_CB_INTERVAL", 60*time.Second),
		CircuitBreakerTimeout:             getEnvAsDurationOrDefault("QUADSIM_CB_TIMEOUT", 30*time.Second),
		CircuitBreakerMaxConsecutiveFails: getEnvAsIntOrDefault("QUADSIM_CB_MAX_FAILS", 5),

		MaxMemoryMB:         getEnvAsIntOrDefault("QUADSIM_MAX_MEMORY_MB", 500),
		FrameStallThreshold: getEnvAsDurationOrDefault("QUADSIM_FRAME_STALL", 2*time.Second),
		ShutdownTimeout:     getEnvAsDurationOrDefault("QUADSIM_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := validateEnvironmentConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateEnvironmentConfig(c *EnvironmentConfig) error {
	switch {
	case c.ServerAddr == "":
		return &ValidationError{"ServerAddr", c.ServerAddr, "must not be empty"}
	case c.ServerPort < 1024 || c.ServerPort > 65535:
		return &ValidationError{"ServerPort", c.ServerPort, "must be between 1024 and 65535"}
	case c.MaxClients < 1 || c.MaxClients > 1000:
		return &ValidationError{"MaxClients", c.MaxClients, "must be between 1 and 1000"}
	case c.ReadTimeout < time.Second || c.ReadTimeout > time.Minute:
		return &ValidationError{"ReadTimeout", c.ReadTimeout, "must be between 1s and 1m"}
	case c.WriteTimeout < time.Second || c.WriteTimeout > time.Minute:
		return &ValidationError{"WriteTimeout", c.WriteTimeout, "must be between 1s and 1m"}
	case c.CircuitBreakerMaxRequests < 1:
		return &ValidationError{"CircuitBreakerMaxRequests", c.CircuitBreakerMaxRequests, "must be at least 1"}
	case c.CircuitBreakerInterval < time.Second:
		return &ValidationError{"CircuitBreakerInterval", c.CircuitBreakerInterval, "must be at least 1s"}
	case c.CircuitBreakerTimeout < time.Second:
		return &ValidationError{"CircuitBreakerTimeout", c.CircuitBreakerTimeout, "must be at least 1s"}
	case c.CircuitBreakerMaxConsecutiveFails < 1:
		return &ValidationError{"CircuitBreakerMaxConsecutiveFails", c.CircuitBreakerMaxConsecutiveFails, "must be at least 1"}
	case c.MaxMemoryMB < 16:
		return &ValidationError{"MaxMemoryMB", c.MaxMemoryMB, "must be at least 16"}
	case c.FrameStallThreshold < 100*time.Millisecond:
		return &ValidationError{"FrameStallThreshold", c.FrameStallThreshold, "must be at least 100ms"}
	case c.ShutdownTimeout < time.Second:
		return &ValidationError{"ShutdownTimeout", c.ShutdownTimeout, "must be at least 1s"}
	}
	return nil
}

// ApplyEnvironmentOverrides copies simulation settings from the environment
// over values loaded from a file. Unset variables leave the file values alone.
// The result is validated.
func ApplyEnvironmentOverrides(config *SimulationConfig) error {
	config.Mode = getEnvOrDefault("QUADSIM_MODE", config.Mode)
	config.Seed = getEnvAsUint64OrDefault("QUADSIM_SEED", config.Seed)

	config.Arena.Width = getEnvAsFloatOrDefault("QUADSIM_ARENA_WIDTH", config.Arena.Width)
	config.Arena.Height = getEnvAsFloatOrDefault("QUADSIM_ARENA_HEIGHT", config.Arena.Height)

	config.Particles.Count = getEnvAsIntOrDefault("QUADSIM_PARTICLE_COUNT", config.Particles.Count)
	config.Particles.Radius = getEnvAsFloatOrDefault("QUADSIM_PARTICLE_RADIUS", config.Particles.Radius)

	config.QuadTree.Capacity = getEnvAsIntOrDefault("QUADSIM_QT_CAPACITY", config.QuadTree.Capacity)
	config.QuadTree.QueryLimit = getEnvAsIntOrDefault("QUADSIM_QT_QUERY_LIMIT", config.QuadTree.QueryLimit)
	config.QuadTree.DedupPairs = getEnvAsBoolOrDefault("QUADSIM_QT_DEDUP", config.QuadTree.DedupPairs)
	config.QuadTree.Workers = getEnvAsIntOrDefault("QUADSIM_WORKERS", config.QuadTree.Workers)

	config.Server.Address = getEnvOrDefault("QUADSIM_SERVER_ADDR", config.Server.Address)
	config.Server.Port = getEnvAsIntOrDefault("QUADSIM_SERVER_PORT", config.Server.Port)
	config.Server.FrameRate = getEnvAsIntOrDefault("QUADSIM_FRAME_RATE", config.Server.FrameRate)
	config.Server.BroadcastEvery = getEnvAsIntOrDefault("QUADSIM_BROADCAST_EVERY", config.Server.BroadcastEvery)
	config.Server.MaxViewers = getEnvAsIntOrDefault("QUADSIM_MAX_CLIENTS", config.Server.MaxViewers)

	return config.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint64OrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
