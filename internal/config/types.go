// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// ContainerEnginePodman uses Podman as the container runtime.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker as the container runtime.
	ContainerEngineDocker ContainerEngine = "docker"

	// LogLevelDebug logs every engine call and readiness attempt.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs lifecycle steps.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs recoverable problems only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs failures only.
	LogLevelError LogLevel = "error"

	// DefaultStackFile is the stack file looked up in the working directory.
	DefaultStackFile = "stack.yaml"
	// DefaultReadinessTimeout bounds the wait for a healthy dependency.
	DefaultReadinessTimeout = 60 * time.Second
	// DefaultReadinessInterval is the initial delay between readiness probes.
	DefaultReadinessInterval = 500 * time.Millisecond
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidReadinessConfig is the sentinel error wrapped by InvalidReadinessConfigError.
	ErrInvalidReadinessConfig = errors.New("invalid readiness config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine specifies which container runtime to prefer.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is not recognized.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// LogLevel is the minimum level of the CLI logger.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// Config holds the stackctl user configuration.
	Config struct {
		// ContainerEngine is the preferred engine; the other one is used as a fallback.
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// StackFile is the stack definition used when --file is not given.
		StackFile string `json:"stack_file" mapstructure:"stack_file"`
		// LogLevel is the logger level when --verbose is not given.
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
		// Readiness holds the default readiness wait settings.
		Readiness ReadinessConfig `json:"readiness" mapstructure:"readiness"`
		// Build holds image build defaults.
		Build BuildConfig `json:"build" mapstructure:"build"`
		// UI holds output preferences.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// ReadinessConfig bounds how long `up` waits for a dependency.
	// Per-service readiness settings in the stack file take precedence.
	ReadinessConfig struct {
		Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
		Interval time.Duration `json:"interval" mapstructure:"interval"`
	}

	// InvalidReadinessConfigError is returned when a ReadinessConfig has invalid fields.
	InvalidReadinessConfigError struct {
		FieldErrors []error
	}

	// BuildConfig holds image build defaults.
	BuildConfig struct {
		// NoCache disables the layer cache for every build.
		NoCache bool `json:"no_cache" mapstructure:"no_cache"`
	}

	// UIConfig holds output preferences.
	UIConfig struct {
		// Verbose prints full error chains and debug logs.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It collects the field-level errors of every section.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEngineDocker,
		StackFile:       DefaultStackFile,
		LogLevel:        LogLevelInfo,
		Readiness: ReadinessConfig{
			Timeout:  DefaultReadinessTimeout,
			Interval: DefaultReadinessInterval,
		},
	}
}

// String returns the engine name.
func (e ContainerEngine) String() string { return string(e) }

// IsValid reports whether the engine is podman or docker.
func (e ContainerEngine) IsValid() (bool, []error) {
	switch e {
	case ContainerEnginePodman, ContainerEngineDocker:
		return true, nil
	default:
		return false, []error{&InvalidContainerEngineError{Value: e}}
	}
}

// Error implements the error interface.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: podman, docker)", e.Value)
}

// Unwrap returns ErrInvalidContainerEngine for errors.Is() compatibility.
func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

// String returns the level name.
func (l LogLevel) String() string { return string(l) }

// IsValid reports whether the level is one of debug, info, warn or error.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Level converts the level for the charmbracelet logger. Unknown values map to info.
func (l LogLevel) Level() log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(string(l)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// IsValid requires a positive timeout and an interval shorter than it.
func (c ReadinessConfig) IsValid() (bool, []error) {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("readiness.timeout must be positive, got %s", c.Timeout))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("readiness.interval must be positive, got %s", c.Interval))
	} else if c.Timeout > 0 && c.Interval > c.Timeout {
		errs = append(errs, fmt.Errorf("readiness.interval %s exceeds readiness.timeout %s", c.Interval, c.Timeout))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidReadinessConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface.
func (e *InvalidReadinessConfigError) Error() string {
	return fmt.Sprintf("invalid readiness config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidReadinessConfig for errors.Is() compatibility.
func (e *InvalidReadinessConfigError) Unwrap() error { return ErrInvalidReadinessConfig }

// IsValid validates every section of the configuration.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.ContainerEngine.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if strings.TrimSpace(c.StackFile) == "" {
		errs = append(errs, errors.New("stack_file must not be empty"))
	}
	if valid, fieldErrs := c.LogLevel.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Readiness.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }
