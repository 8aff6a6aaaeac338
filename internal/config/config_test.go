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
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func resetGlobalConfig() {
	globalConfig = &Config{
		DataDir:         ".gompei",
		FeedPath:        "verifications.json",
		PollInterval:    "5s",
		BindAddr:        "0.0.0.0",
		MetricsPort:     12790,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
dataDir: "/var/lib/gompei"
feedPath: "/var/www/verifications.json"
pollInterval: "10s"
verifyUrl: "https://verify.example.com"
bindAddr: "127.0.0.1"
metricsPort: 8088
shutdownTimeout: "10s"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-gompei.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	defer os.Remove(tmpFile)

	expected := &Config{
		DataDir:         "/var/lib/gompei",
		FeedPath:        "/var/www/verifications.json",
		PollInterval:    "10s",
		VerifyUrl:       "https://verify.example.com",
		BindAddr:        "127.0.0.1",
		MetricsPort:     8088,
		ShutdownTimeout: "10s",
	}

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !reflect.DeepEqual(cfg, expected) {
		t.Fatalf(
			"config mismatch\n  got:  %+v\n  want: %+v",
			cfg,
			expected,
		)
	}
}

func TestLoad_PartialOverlaysDefaults(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
feedPath: "/srv/feed.json"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-gompei.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	defer os.Remove(tmpFile)

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.FeedPath != "/srv/feed.json" {
		t.Fatalf("unexpected feed path: %s", cfg.FeedPath)
	}
	if cfg.DataDir != ".gompei" {
		t.Fatalf("default data dir not preserved: %s", cfg.DataDir)
	}
	if cfg.MetricsPort != 12790 {
		t.Fatalf("default metrics port not preserved: %d", cfg.MetricsPort)
	}
}

func TestLoad_TokenFromEnvironment(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("DISCORD_TOKEN", "test-token")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Token != "test-token" {
		t.Fatalf("token not read from environment: %q", cfg.Token)
	}
}
