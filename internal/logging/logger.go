package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level controls which messages a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Field is a single structured key/value group attached to a log line.
type Field struct {
	kv map[string]interface{}
}

// WithField attaches one key/value pair to a log call.
func WithField(key string, value interface{}) Field {
	return Field{kv: map[string]interface{}{key: value}}
}

// WithFields attaches multiple key/value pairs to a log call.
func WithFields(fields map[string]interface{}) Field {
	return Field{kv: fields}
}

// Logger writes leveled, structured log lines.
type Logger struct {
	mu    sync.Mutex
	level Level
	out   io.Writer
}

// New creates a logger that writes to stderr at the given level.
func New(level Level) *Logger {
	return &Logger{level: level, out: os.Stderr}
}

// NewWithOutput creates a logger writing to the given writer (used in tests).
func NewWithOutput(level Level, out io.Writer) *Logger {
	return &Logger{level: level, out: out}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	merged := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f.kv {
			merged[k] = v
		}
	}

	line := map[string]interface{}{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level.String(),
		"msg":   msg,
	}
	for k, v := range merged {
		if _, taken := line[k]; taken {
			continue
		}
		line[k] = v
	}

	data, err := json.Marshal(line)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":%q,"msg":%q}`, level.String(), msg))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(data, '\n'))
}
