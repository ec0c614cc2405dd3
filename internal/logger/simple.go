package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Simple is a structured logger that writes leveled, field-annotated lines
// to the standard library logger.
type Simple struct {
	level     Level
	fields    map[string]interface{}
	component string
}

// NewSimple creates a new Simple logger at InfoLevel.
func NewSimple() *Simple {
	return &Simple{
		level:  InfoLevel,
		fields: make(map[string]interface{}),
	}
}

// NewDefault creates the default Logger implementation, honoring LOG_LEVEL.
func NewDefault() Logger {
	l := NewSimple()
	l.SetLevel(LevelFromEnv())
	return l
}

// LevelFromEnv reads LOG_LEVEL from the environment, defaulting to INFO.
func LevelFromEnv() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "INFO"
	}
	return level
}

func (l *Simple) Debug(msg string, fields ...interface{}) {
	if l.level <= DebugLevel {
		l.log("DEBUG", msg, fields...)
	}
}

func (l *Simple) Info(msg string, fields ...interface{}) {
	if l.level <= InfoLevel {
		l.log("INFO", msg, fields...)
	}
}

func (l *Simple) Warn(msg string, fields ...interface{}) {
	if l.level <= WarnLevel {
		l.log("WARN", msg, fields...)
	}
}

func (l *Simple) Error(msg string, fields ...interface{}) {
	if l.level <= ErrorLevel {
		l.log("ERROR", msg, fields...)
	}
}

func (l *Simple) SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		l.level = DebugLevel
	case "INFO":
		l.level = InfoLevel
	case "WARN", "WARNING":
		l.level = WarnLevel
	case "ERROR":
		l.level = ErrorLevel
	}
}

func (l *Simple) WithField(key string, value interface{}) Logger {
	return l.with(map[string]interface{}{key: value})
}

func (l *Simple) WithFields(fields map[string]interface{}) Logger {
	return l.with(fields)
}

func (l *Simple) With(fields ...Field) Logger {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return l.with(m)
}

func (l *Simple) WithComponent(name string) Logger {
	clone := l.clone()
	clone.component = name
	return clone
}

func (l *Simple) with(extra map[string]interface{}) Logger {
	clone := l.clone()
	for k, v := range extra {
		clone.fields[k] = v
	}
	return clone
}

func (l *Simple) clone() *Simple {
	newFields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	return &Simple{level: l.level, fields: newFields, component: l.component}
}

func (l *Simple) log(level, msg string, fields ...interface{}) {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", level))
	if l.component != "" {
		parts = append(parts, fmt.Sprintf("component=%s", l.component))
	}
	parts = append(parts, msg)

	for k, v := range l.fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}

	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			parts = append(parts, fmt.Sprintf("%v=%v", fields[i], fields[i+1]))
		}
	}

	log.Println(strings.Join(parts, " "))
}
