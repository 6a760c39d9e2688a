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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "steward.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DataDir          string `yaml:"dataDir"                                      split_words:"true"`
	Owner            string `yaml:"owner"`
	MetricsPort      uint   `yaml:"metricsPort"                                  split_words:"true"`
	ProposalPeriod   uint64 `yaml:"proposalPeriod"                               split_words:"true"`
	QuorumPercentage uint32 `yaml:"quorumPercentage"                             split_words:"true"`
	ShutdownTimeout  string `yaml:"shutdownTimeout"                              split_words:"true"`
	Tracing          bool   `yaml:"tracing"`
	TracingStdout    bool   `yaml:"tracingStdout"    envconfig:"TRACING_STDOUT"`
}

var globalConfig = &Config{
	DataDir:          ".steward",
	MetricsPort:      12798,
	ProposalPeriod:   100,
	QuorumPercentage: 50,
	ShutdownTimeout:  DefaultShutdownTimeout,
}

// LoadConfig loads the config file (if any) and applies environment
// variable overrides. With an empty path, well-known locations are checked
// before falling back to defaults.
func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		// Check for config file in this path: ~/.steward/steward.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".steward", "steward.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		// Try to check for /etc/steward/steward.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/steward/steward.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	if err := envconfig.Process("steward", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	if globalConfig.QuorumPercentage > 100 {
		globalConfig.QuorumPercentage = 100
	}
	return globalConfig, nil
}

// GetConfig returns the current config
func GetConfig() *Config {
	return globalConfig
}
