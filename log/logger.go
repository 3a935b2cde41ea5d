package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	mu     *sync.Mutex
	writer io.Writer

	Name  string
	Level LogLevel

	TimeFormat string
	File       string
	NoColor    bool
	JSON       bool
	NoTerminal bool
	Rotation   *LoggerRotation
}

type LoggerRotation struct {
	MaxSize    int  `yaml:"max_size"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAge     int  `yaml:"max_age"`
	Compress   bool `yaml:"compress"`
}

type logEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service,omitempty"`
	Message   string `json:"message"`
}

func DefaultRotation() *LoggerRotation {
	return &LoggerRotation{
		MaxSize:    128,
		MaxBackups: 5,
		MaxAge:     16,
		Compress:   false,
	}
}

func NewLogger(name string, level LogLevel, file string, noTerminal bool) *Logger {
	l := &Logger{
		mu:         &sync.Mutex{},
		Name:       name,
		Level:      level,
		File:       file,
		NoTerminal: noTerminal,

		TimeFormat: "2006-01-02 15:04:05",
		Rotation:   DefaultRotation(),
	}

	l.setupWriter()

	return l
}

// NewWriterLogger writes uncolored lines to w only.
func NewWriterLogger(name string, level LogLevel, w io.Writer) *Logger {
	return &Logger{
		mu:         &sync.Mutex{},
		writer:     w,
		Name:       name,
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
		NoTerminal: true,
	}
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	return NewWriterLogger("", Fatal+1, io.Discard)
}

// Reconfigure rebuilds the underlying writer after File, NoTerminal or
// Rotation were changed.
func (l *Logger) Reconfigure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setupWriter()
}

func (l *Logger) setupWriter() {
	var writers []io.Writer

	if !l.NoTerminal {
		writers = append(writers, os.Stdout)
	}

	if l.File != "" {
		rotation := l.Rotation
		if rotation == nil {
			rotation = DefaultRotation()
		}

		writers = append(writers, &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    rotation.MaxSize,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAge,
			Compress:   rotation.Compress,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	l.writer = io.MultiWriter(writers...)
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if l == nil || level < l.Level {
		return
	}

	line := l.format(level, time.Now(), fmt.Sprintf(msg, args...))

	l.mu.Lock()
	l.writer.Write(line)
	l.mu.Unlock()

	if level == Fatal {
		os.Exit(1)
	}
}

// format renders one newline-terminated entry.
func (l *Logger) format(level LogLevel, now time.Time, message string) []byte {
	timestamp := now.Format(l.TimeFormat)

	if l.JSON {
		line, err := json.Marshal(logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Service:   l.Name,
			Message:   message,
		})
		if err != nil {
			line = []byte(fmt.Sprintf(`{"level":%q,"message":%q}`, level, message))
		}
		return append(line, '\n')
	}

	prefix := fmt.Sprintf("[%s] %-5s", timestamp, level)
	if l.Name != "" {
		prefix += " [" + l.Name + "]"
	}

	if l.NoTerminal || l.NoColor {
		return []byte(prefix + " " + message + "\n")
	}
	return []byte(level.color() + prefix + " " + message + colorReset + "\n")
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(Debug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(Info, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(Warn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(Error, msg, args...)
}

func (l *Logger) Fatal(msg string, args ...any) {
	l.log(Fatal, msg, args...)
}

func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}

	fullName := name
	if l.Name != "" {
		fullName = fmt.Sprintf("%s/%s", l.Name, name)
	}

	return &Logger{
		mu:     l.mu, // Share the same writer and its lock
		writer: l.writer,

		Name:  fullName,
		Level: l.Level,

		TimeFormat: l.TimeFormat,
		File:       l.File,
		NoColor:    l.NoColor,
		NoTerminal: l.NoTerminal,
		JSON:       l.JSON,
		Rotation:   l.Rotation,
	}
}
