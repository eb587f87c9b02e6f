package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide logger. It discards everything until Setup is called.
var Logger = zerolog.Nop()

// Options selects verbosity and an optional rotating log file.
type Options struct {
	Debug   bool
	Verbose bool
	File    string
	Console io.Writer // defaults to os.Stderr
}

// Setup инициализирует глобальный логгер.
// Debug=true: уровень Debug; Verbose=true: Info; иначе Warn.
// Если задан File, записи дублируются в файл с ротацией.
func Setup(opts Options) zerolog.Logger {
	level := zerolog.WarnLevel
	if opts.Verbose {
		level = zerolog.InfoLevel
	}
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	var w io.Writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	if opts.File != "" {
		w = zerolog.MultiLevelWriter(w, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}

	Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return Logger
}

// Component returns a sub-logger tagged with the component name.
func Component(name string) *zerolog.Logger {
	l := Logger.With().Str("component", name).Logger()
	return &l
}
