package logging

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/high-horse/fingerprint-server/config"
)

func TestNewWritesToOutput(t *testing.T) {
	cfg := config.LoadDefaultConfig().Log
	cfg.NoColors = true

	var buf bytes.Buffer
	logger, err := New(cfg, &buf)
	require.NoError(t, err)

	logger.WithFields(Fields{"request_id": "abc"}).Info("identify done")
	logger.Debug("hidden")

	assert.Contains(t, buf.String(), "identify done")
	assert.Contains(t, buf.String(), "request_id:abc")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewRotatesIntoDir(t *testing.T) {
	cfg := config.LoadDefaultConfig().Log
	cfg.Dir = filepath.Join(t.TempDir(), "logs")
	cfg.NoColors = true

	var buf bytes.Buffer
	logger, err := New(cfg, &buf)
	require.NoError(t, err)
	logger.Warn("to file")

	files, err := filepath.Glob(filepath.Join(cfg.Dir, "fingerprint-*.log"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestNewRejectsLevel(t *testing.T) {
	cfg := config.LoadDefaultConfig().Log
	cfg.Level = "loud"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", RequestID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))

	cfg := config.LoadDefaultConfig().Log
	cfg.NoColors = true
	var buf bytes.Buffer
	logger, err := New(cfg, &buf)
	require.NoError(t, err)
	Entry(ctx, logger).Info("tagged")
	assert.Contains(t, buf.String(), "request_id:req-1")
}
