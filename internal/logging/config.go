// Package logging owns process-wide logger setup. Components receive their
// loggers from here (or use the zerolog global) and never configure output
// themselves.
package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "HALOCTL_LOG_LEVEL"
	EnvLogTimestamp = "HALOCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "HALOCTL_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

type settings struct {
	level     zerolog.Level
	timestamp bool
	noColor   bool
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultSettings(profile)
		applyEnvOverrides(&cfg)

		zerolog.SetGlobalLevel(cfg.level)
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.noColor,
		}
		logger := zerolog.New(output)
		if cfg.timestamp {
			logger = logger.With().Timestamp().Logger()
		}
		log.Logger = logger
	})
}

// WithApp returns the global logger tagged with an app name, for binaries.
func WithApp(app string) zerolog.Logger {
	return log.Logger.With().Str("app", app).Logger()
}

func defaultSettings(profile Profile) settings {
	switch profile {
	case ProfileTest:
		return settings{level: zerolog.DebugLevel, timestamp: false, noColor: true}
	default:
		return settings{level: zerolog.InfoLevel, timestamp: true}
	}
}

func applyEnvOverrides(cfg *settings) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.noColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
