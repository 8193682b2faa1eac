package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	logger     zerolog.Logger
	loggerOnce sync.Once
	mu         sync.RWMutex
)

// initLogger builds the process logger from LOG_LEVEL / LOG_FORMAT.
// Console output to stderr unless LOG_FORMAT=json.
func initLogger() {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		var w io.Writer = os.Stderr
		if !strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}
		logger = zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(os.Getenv("LOG_LEVEL")))
	})
}

// SetOutput redirects log output; used by tests and by --log-json.
func SetOutput(w io.Writer) {
	initLogger()
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Output(w)
}

func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(parseLevel(string(l)))
}

func Debug(msg string, kv ...any) {
	logWithLevel(zerolog.DebugLevel, nil, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(zerolog.InfoLevel, nil, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(zerolog.WarnLevel, nil, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	logWithLevel(zerolog.ErrorLevel, err, msg, kv...)
}

func logWithLevel(level zerolog.Level, err error, msg string, kv ...any) {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	// Expect kv as pairs: key, value, key, value, ...
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
