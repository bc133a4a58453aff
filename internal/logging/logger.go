package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents an enumeration of log levels
type Level int

const (
	Critical Level = 50
	Error    Level = 40
	Warning  Level = 30
	Info     Level = 20
	Debug    Level = 10
	NotSet   Level = 0
)

// ParseLevel maps a textual level to a Level, defaulting to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warning
	case "error":
		return Error
	case "critical", "fatal":
		return Critical
	default:
		return Info
	}
}

// levelVar is shared between a logger and its children so SetLevel applies to all of them.
type levelVar struct {
	mu    sync.Mutex
	level Level
}

func (v *levelVar) get() Level {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.level
}

func (v *levelVar) set(l Level) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.level = l
}

// Logger provides leveled key/value logging with a component prefix
type Logger struct {
	prefix string
	out    io.Writer
	logger *log.Logger
	level  *levelVar
}

// New creates a logger writing to out with a given prefix
func New(out io.Writer, prefix string, level Level) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		prefix: prefix,
		out:    out,
		logger: log.New(out, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		level:  &levelVar{level: level},
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(io.Discard, "discard", Critical+1)
}

// With returns a child logger with its own prefix sharing the parent's output and level.
func (l *Logger) With(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		out:    l.out,
		logger: log.New(l.out, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		level:  l.level,
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.level.set(level)
}

// Level returns the current logging level
func (l *Logger) Level() Level {
	return l.level.get()
}

func (l *Logger) Debug(msg string, keyvals ...any) {
	l.log(Debug, "DEBUG", msg, keyvals...)
}

func (l *Logger) Info(msg string, keyvals ...any) {
	l.log(Info, "INFO", msg, keyvals...)
}

func (l *Logger) Warn(msg string, keyvals ...any) {
	l.log(Warning, "WARN", msg, keyvals...)
}

func (l *Logger) Error(msg string, keyvals ...any) {
	l.log(Error, "ERROR", msg, keyvals...)
}

func (l *Logger) log(level Level, tag, msg string, keyvals ...any) {
	if l == nil || l.level.get() > level {
		return
	}
	l.logger.Println(formatMessage(tag, msg, keyvals...))
}

// formatMessage formats a message with key-value pairs
func formatMessage(level, msg string, keyvals ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 < len(keyvals) {
			fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
		} else {
			fmt.Fprintf(&b, " %v=(missing)", keyvals[i])
		}
	}
	return b.String()
}

// FileOptions configures the optional rotated log file
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// Output returns the writer for process logs: stdout, plus a size-rotated
// file when opts.Path is set. The returned closer releases the file.
func Output(opts FileOptions) (io.Writer, io.Closer) {
	if opts.Path == "" {
		return os.Stdout, nopCloser{}
	}
	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, file), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
