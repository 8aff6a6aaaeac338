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

package gompei

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	token           string
	dataDir         string
	feedPath        string
	verifyURL       string
	pollInterval    time.Duration
	shutdownTimeout time.Duration
}

func (c *Config) validate() error {
	if c.token == "" {
		return errors.New("no bot token configured")
	}
	if c.feedPath == "" {
		return errors.New("no verification feed path configured")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the bot config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new bot config with the specified options
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

// WithToken specifies the bot token used to authenticate with the platform
func WithToken(token string) ConfigOptionFunc {
	return func(c *Config) {
		c.token = token
	}
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithFeedPath specifies the path of the verification feed file to ingest
func WithFeedPath(feedPath string) ConfigOptionFunc {
	return func(c *Config) {
		c.feedPath = feedPath
	}
}

// WithVerifyURL specifies the URL members are sent to when they still need to verify
func WithVerifyURL(verifyURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.verifyURL = verifyURL
	}
}

// WithPollInterval specifies how often the verification feed is polled
func WithPollInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer to use for metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
