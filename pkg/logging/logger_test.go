// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_ConsoleOutput(t *testing.T) {
	t.Run("text filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Level: LevelWarn, Output: &buf, Service: "svc"})

		logger.Info("hidden")
		logger.Warn("shown", "key", "value")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "shown")
		assert.Contains(t, out, "key=value")
		assert.Contains(t, out, "service=svc")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Level: LevelDebug, Output: &buf, JSON: true})

		logger.Debug("hello", "n", 3)

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, float64(3), record["n"])
	})

	t.Run("quiet", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Output: &buf, Quiet: true})
		logger.Error("nothing")
		assert.Empty(t, buf.String())
	})
}

func TestNew_Exporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Quiet: true, Service: "svc", Exporter: exporter})

	logger.Debug("dropped")
	logger.With("request_id", "r1").Info("kept", "count", 2)
	logger.Slog().WithGroup("index").Warn("grouped", "nodes", 7)
	require.NoError(t, logger.Close())

	entries := exporter.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "kept", entries[0].Message)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, "svc", entries[0].Service)
	assert.Equal(t, "r1", entries[0].Attrs["request_id"])
	assert.Equal(t, int64(2), entries[0].Attrs["count"])

	assert.Equal(t, LevelWarn, entries[1].Level)
	assert.Equal(t, int64(7), entries[1].Attrs["index.nodes"])
}

func TestNew_FileOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "tokentree", Output: &console})

	logger.Info("to file", "k", "v")
	require.NoError(t, logger.Close())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0].Name(), "tokentree_"))

	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
	assert.Contains(t, console.String(), "to file")
}

func TestClose_Idempotent(t *testing.T) {
	logger := New(Config{Quiet: true, LogDir: t.TempDir(), Exporter: NewBufferedExporter()})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "rel/path", expandPath("rel/path"))
}
