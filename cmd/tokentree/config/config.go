// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the tokentree CLI configuration file.
//
// Example tokentree.yaml:
//
//	logging:
//	  level: info
//	  dir: ~/.tokentree/logs
//	telemetry:
//	  service_name: tokentree
//	  trace_exporter: none
//	  metric_exporter: prometheus
//	index:
//	  max_texts: 100000
//	  empty_texts: reject
//	server:
//	  addr: ":8080"
//	  write_rate: 50
//	  write_burst: 10
//	  max_results: 1000
//	  max_tokens: 100000
//	  max_body_bytes: 8388608
//	  shutdown_timeout: 10s
//	corpus:
//	  dir: ./corpus
//	  watch: true
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tokentree/pkg/logging"
	"github.com/AleutianAI/tokentree/services/tokentree/index"
	"github.com/AleutianAI/tokentree/services/tokentree/telemetry"
)

// Config is the full CLI configuration.
type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Index     IndexConfig      `yaml:"index"`
	Server    ServerConfig     `yaml:"server"`
	Corpus    CorpusConfig     `yaml:"corpus"`
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// IndexConfig controls index construction.
type IndexConfig struct {
	// MaxTexts caps the number of texts. Zero means unlimited.
	MaxTexts int `yaml:"max_texts" validate:"min=0"`

	// EmptyTexts is "reject" or "ignore".
	EmptyTexts string `yaml:"empty_texts" validate:"omitempty,oneof=reject ignore"`
}

// ServerConfig controls the HTTP server started by `tokentree serve`.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	WriteRate       float64       `yaml:"write_rate" validate:"min=0"`
	WriteBurst      int           `yaml:"write_burst" validate:"min=0"`
	MaxResults      int           `yaml:"max_results" validate:"min=0"`
	MaxTokens       int           `yaml:"max_tokens" validate:"min=0"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// CorpusConfig names the corpus loaded at startup.
type CorpusConfig struct {
	Dir   string   `yaml:"dir"`
	Files []string `yaml:"files"`
	Watch bool     `yaml:"watch"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
		Index:     IndexConfig{EmptyTexts: "reject"},
		Server: ServerConfig{
			Addr:            ":8080",
			WriteBurst:      1,
			MaxTokens:       100_000,
			MaxBodyBytes:    8 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path over the defaults. An empty path or a missing file
// yields Default(). Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the struct tags.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// LoggerConfig converts the logging section for pkg/logging.
func (c Config) LoggerConfig(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
	}, nil
}

// IndexOptions converts the index section into index options.
func (c Config) IndexOptions() ([]index.Option, error) {
	policy, ok := index.ParseEmptyTextPolicy(c.Index.EmptyTexts)
	if !ok {
		return nil, fmt.Errorf("unknown empty_texts policy %q", c.Index.EmptyTexts)
	}
	return []index.Option{
		index.WithMaxTexts(c.Index.MaxTexts),
		index.WithEmptyTextPolicy(policy),
	}, nil
}
