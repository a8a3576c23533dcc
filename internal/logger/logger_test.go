package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	cfg := DefaultConfig()
	cfg.Level = "warn"
	cfg.Output = filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Setup(cfg))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	cfg.Level = "loud"
	assert.Error(t, Setup(cfg))
}

func TestWithComponentKeepsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	reqLog := zerolog.New(&buf).With().Str("request_id", "req-1").Logger()
	ctx := reqLog.WithContext(context.Background())

	l := WithComponent(ctx, "invoicing")
	l.Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "invoicing", entry["component"])
}
