package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json")

	log.Debug("hidden")
	log.Info("seller extracted", "component", "scraper", "fields", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "seller extracted", entry["msg"])
	assert.Equal(t, "scraper", entry["component"])
	assert.Equal(t, float64(3), entry["fields"])
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "text")

	log.Debug("page fetched", "status", 200)

	assert.Contains(t, buf.String(), "msg=\"page fetched\"")
	assert.Contains(t, buf.String(), "status=200")
}

func TestRotatingFileDefaults(t *testing.T) {
	file := RotatingFile(FileOptions{Path: "/tmp/seller-scraper.log"})
	assert.Equal(t, 200, file.MaxSize)
	assert.True(t, file.LocalTime)

	file = RotatingFile(FileOptions{Path: "/tmp/seller-scraper.log", MaxSizeMB: 10, MaxBackups: 3, Compress: true})
	assert.Equal(t, 10, file.MaxSize)
	assert.Equal(t, 3, file.MaxBackups)
	assert.True(t, file.Compress)
}

func TestNewRotatingWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.log")

	log, closer := NewRotating("info", "json", FileOptions{Path: path})
	log.Info("crawl started", "keyword", "マグカップ")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "crawl started")
}

func TestNewRotatingWithoutFile(t *testing.T) {
	log, closer := NewRotating("info", "text", FileOptions{})
	require.NotNil(t, log)
	assert.NoError(t, closer.Close())
}
