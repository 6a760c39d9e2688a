// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package steward

import (
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/steward/clock"
	"github.com/blinklabs-io/steward/identity"
)

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	clock           clock.Source
	owner           identity.Principal
	dataDir         string
	proposalPeriod  uint64
	metricsPort     uint
	tracing         bool
	tracingStdout   bool
	shutdownTimeout time.Duration
}

// ConfigOptionFunc is a type that represents functions that modify the Steward config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new steward config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithOwner specifies the deployer principal. A fresh principal is generated when not specified
func WithOwner(owner identity.Principal) ConfigOptionFunc {
	return func(c *Config) {
		c.owner = owner
	}
}

// WithClock specifies the logical height source. This defaults to a manual source starting at zero
func WithClock(clockSource clock.Source) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clockSource
	}
}

// WithProposalPeriod specifies the upgrade-intent window length in heights
func WithProposalPeriod(period uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.proposalPeriod = period
	}
}

// WithPrometheusRegistry specifies the prometheus registry to register metrics against
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithMetricsPort specifies the port for the prometheus metrics listener. This defaults to disabled
func WithMetricsPort(port uint) ConfigOptionFunc {
	return func(c *Config) {
		c.metricsPort = port
	}
}

// WithTracing enables the opentelemetry trace provider. Traces are sent via
// OTLP-HTTP using the standard OTEL_EXPORTER_* env vars for configuration
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout instead of OTLP-HTTP
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
