// Copyright 2025 The Gompei Bot Authors
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

const configContextKey ctxKey = "gompei.config"

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
	// Token is deliberately not read from config files so it never ends
	// up committed alongside one
	Token           string `yaml:"-"               envconfig:"DISCORD_TOKEN"`
	DataDir         string `yaml:"dataDir"                                   split_words:"true"`
	FeedPath        string `yaml:"feedPath"                                  split_words:"true"`
	PollInterval    string `yaml:"pollInterval"                              split_words:"true"`
	VerifyUrl       string `yaml:"verifyUrl"       envconfig:"GOMPEI_VERIFY_URL"`
	BindAddr        string `yaml:"bindAddr"                                  split_words:"true"`
	ShutdownTimeout string `yaml:"shutdownTimeout"                           split_words:"true"`
	MetricsPort     uint   `yaml:"metricsPort"                               split_words:"true"`
}

var globalConfig = &Config{
	DataDir:         ".gompei",
	FeedPath:        "verifications.json",
	PollInterval:    "5s",
	BindAddr:        "0.0.0.0",
	MetricsPort:     12790,
	ShutdownTimeout: DefaultShutdownTimeout,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.gompei/gompei.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".gompei", "gompei.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/gompei/gompei.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/gompei/gompei.yaml"
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
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Load config values from environment variables
	// Env vars override values from the config file
	err := envconfig.Process("gompei", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}
