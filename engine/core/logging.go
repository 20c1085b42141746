package core

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func getLogger() *logger {
	once.Do(
		func() {
			l := log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				TimeFormat:      time.RFC3339,
				Prefix:          "vkbridge 🌋 ",
			})
			l.SetLevel(log.InfoLevel)
			singleton = &logger{l}
		})
	return singleton
}

// ConfigureLogging applies the logging section of the configuration. Unknown
// levels fall back to info.
func ConfigureLogging(cfg LoggingConfig) {
	l := getLogger()
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		l.Warnf("unknown log level `%s`, using info", cfg.Level)
		level = log.InfoLevel
	}
	l.SetLevel(level)
	if cfg.Prefix != "" {
		l.SetPrefix(cfg.Prefix)
	}
}

// SetLogOutput redirects every log line, mostly useful in tests.
func SetLogOutput(w io.Writer) {
	getLogger().SetOutput(w)
}

// Logger returns a child logger carrying the given key/value pairs on every line.
func Logger(keyvals ...interface{}) *log.Logger {
	return getLogger().With(keyvals...)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
