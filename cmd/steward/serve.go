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

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	steward "github.com/blinklabs-io/steward"
	"github.com/blinklabs-io/steward/clock"
	"github.com/blinklabs-io/steward/identity"
	"github.com/blinklabs-io/steward/internal/config"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the store and serve metrics until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			serveRun(cfg)
		},
	}
}

func serveRun(cfg *config.Config) {
	logger := commonRun()
	opts := []steward.ConfigOptionFunc{
		steward.WithLogger(logger),
		steward.WithDataDir(cfg.DataDir),
		steward.WithMetricsPort(cfg.MetricsPort),
		steward.WithProposalPeriod(cfg.ProposalPeriod),
		steward.WithPrometheusRegistry(prometheus.NewRegistry()),
		steward.WithTracing(cfg.Tracing),
		steward.WithTracingStdout(cfg.TracingStdout),
		// Heights count seconds since the Unix epoch so they stay
		// monotonic across restarts
		steward.WithClock(clock.NewSlot(time.Unix(0, 0), time.Second)),
	}
	if cfg.Owner != "" {
		opts = append(opts, steward.WithOwner(identity.Principal(cfg.Owner)))
	}
	if cfg.ShutdownTimeout != "" {
		timeout, err := time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			logger.Error(
				"invalid shutdown timeout",
				"component", programName,
				"error", err,
			)
			os.Exit(1)
		}
		opts = append(opts, steward.WithShutdownTimeout(timeout))
	}
	s, err := steward.New(steward.NewConfig(opts...))
	if err != nil {
		logger.Error(err.Error(), "component", programName)
		os.Exit(1)
	}
	// Stop on signal
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		logger.Info(
			"signal received, shutting down",
			"component", programName,
			"signal", sig.String(),
		)
		if err := s.Stop(); err != nil {
			logger.Error(
				"failed to shutdown cleanly",
				"component", programName,
				"error", err,
			)
			os.Exit(1)
		}
	}()
	if err := s.Run(); err != nil {
		logger.Error(err.Error(), "component", programName)
		os.Exit(1)
	}
}
