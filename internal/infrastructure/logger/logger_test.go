package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, "info", cfg.Level)
		assert.Equal(t, "stdout", cfg.Output)
		assert.Equal(t, TimeFormat, cfg.TimeFormat)

		l, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, l)
	})

	t.Run("json file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "status.log")
		l, err := New(&Config{Level: "warn", Format: "json", Output: path})
		require.NoError(t, err)

		l.Info("skipped")
		l.Warn("Ledger unavailable", zap.String("driver", "sqlite"))
		require.NoError(t, l.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "skipped")
		assert.Contains(t, string(data), `"msg":"Ledger unavailable"`)
		assert.Contains(t, string(data), `"driver":"sqlite"`)
	})

	t.Run("unwritable output", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))
		_, err := New(&Config{Output: filepath.Join(blocker, "app.log")})
		assert.Error(t, err)
	})
}

func TestNewRunLogger(t *testing.T) {
	t.Run("debug reaches the file only", func(t *testing.T) {
		var console bytes.Buffer
		cfg := RunConfig{
			Dir:         t.TempDir(),
			AgreementID: "AGR-1",
			Stage:       "dump",
			Console:     zapcore.AddSync(&console),
		}
		l, closeFn, err := NewRunLogger(cfg)
		require.NoError(t, err)

		l.Debug("payload detail")
		l.Info("Agreement saved")
		require.NoError(t, l.Sync())
		require.NoError(t, closeFn())

		assert.Equal(t, filepath.Join(cfg.Dir, "AGR-1", "logs", "dump.log"), cfg.LogFile())
		data, err := os.ReadFile(cfg.LogFile())
		require.NoError(t, err)
		assert.Contains(t, string(data), "payload detail")
		assert.Contains(t, string(data), "Agreement saved")
		assert.Contains(t, string(data), "AGR-1")

		assert.Contains(t, console.String(), "Agreement saved")
		assert.NotContains(t, console.String(), "payload detail")
	})

	t.Run("debug level reaches the console", func(t *testing.T) {
		var console bytes.Buffer
		l, closeFn, err := NewRunLogger(RunConfig{
			Dir: t.TempDir(), AgreementID: "AGR-1", Stage: "create", Level: "debug",
			Console: zapcore.AddSync(&console),
		})
		require.NoError(t, err)
		defer closeFn()

		l.Debug("payload detail")
		assert.Contains(t, console.String(), "payload detail")
	})

	t.Run("warn level keeps info in the file", func(t *testing.T) {
		var console bytes.Buffer
		l, closeFn, err := NewRunLogger(RunConfig{
			Dir: t.TempDir(), AgreementID: "AGR-1", Stage: "reprice", Level: "warn",
			Console: zapcore.AddSync(&console),
		})
		require.NoError(t, err)
		defer closeFn()

		l.Info("Matched subscription")
		l.Warn("No active lines")
		assert.NotContains(t, console.String(), "Matched subscription")
		assert.Contains(t, console.String(), "No active lines")
	})

	t.Run("appends across runs", func(t *testing.T) {
		dir := t.TempDir()
		for _, msg := range []string{"first", "second"} {
			l, closeFn, err := NewRunLogger(RunConfig{Dir: dir, AgreementID: "AGR-1", Stage: "audit",
				Console: zapcore.AddSync(&bytes.Buffer{})})
			require.NoError(t, err)
			l.Info(msg)
			require.NoError(t, closeFn())
		}
		data, err := os.ReadFile(filepath.Join(dir, "AGR-1", "logs", "audit.log"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "first")
		assert.Contains(t, string(data), "second")
	})
}

func TestWithRunID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, l := WithRunID(context.Background(), zap.New(core), "run-1")
	assert.Equal(t, "run-1", GetRunID(ctx))
	assert.Equal(t, "", GetRunID(context.Background()))

	l.Info("hello")
	FromContext(ctx).Info("from context")
	require.Equal(t, 2, logs.Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "run-1", entry.ContextMap()["run_id"])
	}
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	FromContext(ctx).Info("attached")
	assert.Equal(t, 1, logs.Len())
}

func TestGormLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Equal(t, 0, logs.Len())

	verbose := gl.LogMode(gormlogger.Info)
	verbose.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "SQL Query", logs.All()[0].Message)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 1, logs.Len())
}
