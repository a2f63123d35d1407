package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.SugaredLogger
	mu     sync.Mutex
)

type Logger struct {
	*zap.SugaredLogger
}

func GetLogger() Logger {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		zaplog, _ := zap.NewDevelopment()
		logger = zaplog.Sugar()
	}

	return Logger{SugaredLogger: logger}
}

// Configure replaces the process logger. Production mode logs JSON.
func Configure(level string, development bool) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	zaplog, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	logger = zaplog.Sugar()

	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zapcore.InfoLevel, nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("unsupported log level %q", level)
	}

	return lvl, nil
}
