/*
Licensed to the Apache Software Foundation (ASF) under one
or more contributor license agreements.  See the NOTICE file
distributed with this work for additional information
regarding copyright ownership.  The ASF licenses this file
to you under the Apache License, Version 2.0 (the
"License"); you may not use this file except in compliance
with the License.  You may obtain a copy of the License at

  http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing,
software distributed under the License is distributed on an
"AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
KIND, either express or implied.  See the License for the
specific language governing permissions and limitations
under the License.
*/

// Package config loads the positron command configuration file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/positron-amqp/positron/pkg/positron"
)

// Config holds the positron command configuration.
type Config struct {
	// URL, if set, is applied over Client with ClientOptions.ApplyURL.
	URL       string                   `yaml:"url"`
	Client    positron.ClientOptions   `yaml:"client"`
	Sender    positron.SenderOptions   `yaml:"sender"`
	Receiver  positron.ReceiverOptions `yaml:"receiver"`
	Logging   LoggingConfig            `yaml:"logging"`
	Telemetry TelemetryConfig          `yaml:"telemetry"`
}

// LoggingConfig encapsulates logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	File   FileConfig `yaml:"file"`
	Loki   LokiConfig `yaml:"loki"`
}

// FileConfig enables a rotating log file in addition to standard error.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// TelemetryConfig enables Prometheus lifecycle metrics, served on Listen.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Client:    positron.ClientOptions{Host: "localhost", Port: 5672},
		Sender:    positron.DefaultSenderOptions(),
		Receiver:  positron.DefaultReceiverOptions(),
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{Listen: ":9464"},
	}
}

// DefaultPath returns the default config file path: ~/.positron/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".positron", "config.yaml")
	}
	return filepath.Join(home, ".positron", "config.yaml")
}

// Load reads the configuration from the given YAML file path over the
// defaults. If the file does not exist, it returns the defaults with no
// error. A file readable by group or others is reported on warn, since it
// may hold a password.
func Load(path string, warn io.Writer) (*Config, error) {
	cfg := Default()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 && warn != nil {
		fmt.Fprintf(warn,
			"warning: config file %s has permissions %04o, expected 0600. "+
				"Passwords may be exposed to other users.\n",
			path, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.URL != "" {
		if err := cfg.Client.ApplyURL(cfg.URL); err != nil {
			return nil, fmt.Errorf("url: %w", err)
		}
	}
	return cfg, nil
}
