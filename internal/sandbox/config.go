package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker runs the build tool in a container.
	ModeDocker Mode = "docker"
	// ModeHost runs the build tool directly on the host.
	ModeHost Mode = "host"
	// ModeAuto selects Docker if available, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

// Environment variables read by DefaultConfig.
const (
	EnvMode          = "AIPAIR_SANDBOX_MODE"
	EnvCmdTimeout    = "AIPAIR_CMD_TIMEOUT"
	EnvDockerImage   = "AIPAIR_DOCKER_IMAGE"
	EnvDockerCPU     = "AIPAIR_DOCKER_CPU"
	EnvDockerMemory  = "AIPAIR_DOCKER_MEMORY"
	EnvDockerNetwork = "AIPAIR_DOCKER_NETWORK"
)

// defaultCmdTimeout leaves room for a cold Gradle daemon.
const defaultCmdTimeout = 10 * time.Minute

// Config holds configuration for sandbox execution.
type Config struct {
	Mode        Mode
	DockerImage string        // Custom Docker image override
	CPU         string        // CPU limit (e.g., "2")
	Memory      string        // Memory limit (e.g., "2g")
	CmdTimeout  time.Duration // Default command timeout (0 = use default)
	// Network lets containers reach dependency repositories.
	Network bool
}

// DefaultConfig returns the configuration described by the environment.
// Unknown values are logged and replaced by their defaults.
func DefaultConfig(logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}

	var mode Mode
	switch modeStr := strings.ToLower(os.Getenv(EnvMode)); modeStr {
	case "docker":
		mode = ModeDocker
	case "host":
		mode = ModeHost
	case "auto", "":
		mode = ModeAuto
	default:
		logger.Warn("unknown sandbox mode, defaulting to auto", "env", EnvMode, "value", modeStr)
		mode = ModeAuto
	}

	cmdTimeout := defaultCmdTimeout
	if timeoutStr := os.Getenv(EnvCmdTimeout); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil && d > 0 {
			cmdTimeout = d
		} else {
			logger.Warn("invalid command timeout, using default", "env", EnvCmdTimeout, "value", timeoutStr, "default", defaultCmdTimeout)
		}
	}

	network := true
	if v := os.Getenv(EnvDockerNetwork); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			network = b
		} else {
			logger.Warn("invalid network flag, leaving network enabled", "env", EnvDockerNetwork, "value", v)
		}
	}

	return Config{
		Mode:        mode,
		DockerImage: os.Getenv(EnvDockerImage),
		CPU:         getEnvOrDefault(EnvDockerCPU, "2"),
		Memory:      getEnvOrDefault(EnvDockerMemory, "2g"),
		CmdTimeout:  cmdTimeout,
		Network:     network,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// IsDockerAvailable checks if Docker is available and accessible.
func IsDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	return cmd.Run() == nil
}

// NewDefaultRunner creates a runner for config.Mode:
//   - docker: use Docker, falling back to the host when it is unreachable
//   - host: run on the host
//   - auto: use Docker if available, otherwise the host
func NewDefaultRunner(ctx context.Context, config Config, logger *slog.Logger) Runner {
	if logger == nil {
		logger = slog.Default()
	}
	host := &HostRunner{config: config}

	switch config.Mode {
	case ModeHost:
		return host
	case ModeDocker, ModeAuto:
		if !IsDockerAvailable(ctx) {
			if config.Mode == ModeDocker {
				logger.Warn("docker mode requested but docker is not available, running build tools on the host")
			}
			return host
		}
		dockerRunner, err := NewDockerRunner(ctx, config, logger)
		if err != nil {
			logger.Warn("failed to create docker runner, running build tools on the host", "error", err)
			return host
		}
		return dockerRunner
	default:
		logger.Warn("unknown sandbox mode, running build tools on the host", "mode", config.Mode)
		return host
	}
}

// NewRunner creates a specific runner implementation.
func NewRunner(ctx context.Context, mode Mode, config Config, logger *slog.Logger) (Runner, error) {
	switch mode {
	case ModeDocker:
		return NewDockerRunner(ctx, config, logger)
	case ModeHost:
		return &HostRunner{config: config}, nil
	default:
		return nil, fmt.Errorf("unknown runner mode: %s", mode)
	}
}
