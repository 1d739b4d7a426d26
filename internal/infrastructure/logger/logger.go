package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeFormat is the layout of log timestamps.
const TimeFormat = "2006-01-02 15:04:05"

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

// DefaultConfig returns the console configuration used by the CLI
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: TimeFormat,
	}
}

// New creates a new zap logger with the given configuration
func New(cfg *Config) (*zap.Logger, error) {
	writer, err := createWriter(cfg.Output)
	if err != nil {
		return nil, err
	}
	return zap.New(newCore(cfg, writer), zap.AddCaller()), nil
}

// newCore builds the core of cfg on writer. Console output is colored only
// when it goes to a terminal stream rather than a file.
func newCore(cfg *Config, writer zapcore.WriteSyncer) zapcore.Core {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = TimeFormat
	}
	color := cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "stderr"
	return zapcore.NewCore(createEncoder(cfg.Format, timeFormat, color), writer, parseLevel(cfg.Level))
}

// createWriter opens the output named by cfg.Output.
func createWriter(output string) (zapcore.WriteSyncer, error) {
	switch output {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return zapcore.AddSync(file), nil
}

// RunConfig describes the logger of one stage invocation.
type RunConfig struct {
	// Dir is the output root; the log file goes to <Dir>/<AgreementID>/logs/<Stage>.log.
	Dir         string
	AgreementID string
	Stage       string
	// Level is the console level (info when empty). The file always records debug.
	Level  string
	Format string
	// Console overrides where console output goes (stdout by default).
	Console zapcore.WriteSyncer
}

// LogFile returns the path of the log file for a run.
func (c RunConfig) LogFile() string {
	return filepath.Join(c.Dir, c.AgreementID, "logs", c.Stage+".log")
}

// NewRunLogger returns a logger writing to the console and to the run's log
// file. The returned function closes the file.
func NewRunLogger(cfg RunConfig) (*zap.Logger, func() error, error) {
	path := cfg.LogFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	console := cfg.Console
	if console == nil {
		console = zapcore.Lock(zapcore.AddSync(os.Stdout))
	}

	core := zapcore.NewTee(
		newCore(&Config{Level: cfg.Level, Format: cfg.Format, Output: "stdout", TimeFormat: TimeFormat}, console),
		newCore(&Config{Level: "debug", Format: cfg.Format, Output: path, TimeFormat: TimeFormat}, zapcore.AddSync(file)),
	)
	l := zap.New(core, zap.AddCaller()).With(
		zap.String("agreement_id", cfg.AgreementID),
		zap.String("stage", cfg.Stage),
	)
	return l, file.Close, nil
}

// parseLevel converts a string level to zapcore.Level
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// createEncoder creates the encoder for format. Colors are only used on
// console output.
func createEncoder(format, timeFormat string, color bool) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(timeFormat),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	if color {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}
