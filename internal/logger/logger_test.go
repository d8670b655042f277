package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	Init(false, false, &FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1})
	t.Cleanup(func() { Log = zap.NewNop() })

	Log.Info("document generated")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"document generated"`)
}

func TestInitDebugWithoutFile(t *testing.T) {
	Init(true, false, nil)
	t.Cleanup(func() { Log = zap.NewNop() })

	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))
}
