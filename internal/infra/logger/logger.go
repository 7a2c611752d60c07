package logger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/sifan077/analytics-service/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config drives how the zap logger is built.
type Config struct {
	Development bool
	Level       string
	// Encoding is "console" or "json"; empty picks console in development.
	Encoding string
	// Service is attached to every entry as the "service" field.
	Service string
}

// FromApp derives the logger settings from the service configuration.
// Production logs are JSON; development logs are console lines.
func FromApp(app config.AppConfig) Config {
	cfg := Config{
		Development: !app.Production(),
		Level:       app.LogLevel,
		Service:     app.Name,
		Encoding:    "console",
	}
	if app.Production() {
		cfg.Encoding = "json"
	}
	return cfg
}

var (
	mu     sync.RWMutex
	global *zap.Logger
)

// Init builds the service logger and installs it as the global one.
func Init(cfg Config) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		_ = global.Sync()
	}
	global = l
	return l, nil
}

// MustInit panics if the logger cannot be built.
func MustInit(cfg Config) *zap.Logger {
	l, err := Init(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// L returns the global logger. Before Init it is a development logger so
// configuration errors can still be reported.
func L() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		if dev, err := zap.NewDevelopment(); err == nil {
			global = dev
		} else {
			global = zap.NewNop()
		}
	}
	return global
}

// Named returns a child of base for one component (ingest, dashboard, http,
// nats, ...). Entries carry the component as the logger name.
func Named(base *zap.Logger, component string) *zap.Logger {
	if base == nil {
		base = L()
	}
	return base.Named(component)
}

// Sync flushes the global logger, ignoring the errors terminals return.
func Sync() error {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		return nil
	}

	err := l.Sync()
	if err == nil || errors.Is(err, syscall.ENOTTY) || errors.Is(err, os.ErrInvalid) {
		return nil
	}
	return err
}

// New returns a zap.Logger configured according to cfg.
func New(cfg Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = zapCfg.Encoding
	}
	zapCfg.Encoding = encoding
	zapCfg.EncoderConfig = encoderConfig(encoding, isTerminal(os.Stderr))

	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Service != "" {
		opts = append(opts, zap.Fields(zap.String("service", cfg.Service)))
	}
	return zapCfg.Build(opts...)
}

// encoderConfig uses short keys for JSON shipping and a readable, optionally
// coloured layout for console output.
func encoderConfig(encoding string, colour bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.StacktraceKey = "stack"
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	if encoding != "console" {
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg
	}

	cfg.ConsoleSeparator = " | "
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if colour {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}

func isTerminal(f *os.File) bool {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
