// Package logging builds the zap logger shared by every command.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a logger writing to stderr in the requested format and, when file is set,
// additionally to file as JSON. Unknown levels are an error; a blank level means info.
func New(level, format, file string) (*zap.Logger, error) {
	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if trimmed := strings.TrimSpace(level); trimmed != "" {
		if err := atomicLevel.UnmarshalText([]byte(strings.ToLower(trimmed))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole, "text":
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(consoleConfig)
	case FormatJSON:
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format %q (want %s or %s)", format, FormatConsole, FormatJSON)
	}

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), atomicLevel)}
	if path := strings.TrimSpace(file); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		sink, _, err := zap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, atomicLevel))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
