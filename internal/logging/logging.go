// Package logging builds the zap logger used across pathwaydb.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production (JSON) logger for mode "prod"/"production", a
// no-op logger for "off"/"none", and a development console logger otherwise.
// level may be empty to keep the mode's default.
func New(mode, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "off", "none", "silent":
		return zap.NewNop(), nil
	case "prod", "production", "json":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	// progress goes to stderr so command output on stdout stays pipeable
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
