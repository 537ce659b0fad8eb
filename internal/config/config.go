// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads spanpart's configuration from spanpart.yaml and
// SPANPART_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/tflexsoom/spanpart/palette"
	"github.com/tflexsoom/spanpart/span"
)

// Config is the full configuration. Nested keys are addressed with dots, as
// in server.addr, or with underscores in the environment, as in
// SPANPART_SERVER_ADDR.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // text or json
	} `mapstructure:"log"`
	Store struct {
		// Empty disables the snapshot store.
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`
	Submit struct {
		// Empty disables posting snapshots.
		URL   string `mapstructure:"url"`
		Queue int    `mapstructure:"queue"`
	} `mapstructure:"submit"`
	Batch struct {
		Parallelism int `mapstructure:"parallelism"`
	} `mapstructure:"batch"`
	Scheme struct {
		Labels []Label `mapstructure:"labels"`
	} `mapstructure:"scheme"`
}

// Label pins a label of the annotation scheme to a color.
type Label struct {
	Name  string `mapstructure:"name"`
	Color int    `mapstructure:"color"`
}

// New returns a viper instance with spanpart's defaults, search paths and
// environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.path", "")
	v.SetDefault("submit.url", "")
	v.SetDefault("submit.queue", 64)
	v.SetDefault("batch.parallelism", 0)
	v.SetDefault("scheme.labels", []any{})

	v.SetConfigName("spanpart")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SPANPART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. If file is empty, spanpart.yaml is looked for
// in the search paths and may be absent; otherwise file must exist.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Logger returns the logger the configuration asks for, writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch c.Log.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
}

// Palette returns a palette with the scheme's labels pinned to their colors.
func (c *Config) Palette() (*palette.Palette, error) {
	labels := make([]span.ColorLabel, len(c.Scheme.Labels))
	for i, l := range c.Scheme.Labels {
		labels[i] = span.ColorLabel{Label: l.Name, Color: l.Color}
	}
	p, err := palette.New(labels...)
	if err != nil {
		return nil, fmt.Errorf("scheme.labels: %w", err)
	}
	return p, nil
}
