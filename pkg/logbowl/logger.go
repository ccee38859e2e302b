package logbowl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Environment variable names
const (
	LogLevelEnvVar  = "VBS2EXE_LOG_LEVEL"
	LogFormatEnvVar = "VBS2EXE_LOG_FORMAT"
)

// Log formats
const (
	FormatEmoji = "emoji"
	FormatText  = "text"
	FormatJSON  = "json"
)

var domains = map[string]string{"system": "⚙️", "cli": "⌨️", "config": "🔩", "file": "📄", "embed": "🧬", "template": "📐", "builder": "🛠️", "toolchain": "🔧", "pipeline": "🚰", "batch": "🗂️", "bundle": "📦", "extract": "🔎", "keymgmt": "🔑", "signing": "🔏", "test": "🧪", "default": "❓"}
var actions = map[string]string{"init": "🌱", "start": "🚀", "read": "📖", "write": "📝", "validate": "🛡️", "escape": "🧼", "render": "🎨", "execute": "▶️", "build": "🏗️", "select": "🎯", "pack": "📦", "unpack": "📭", "verify": "🔍", "load": "💡", "decode": "🧩", "generate": "✨", "sign": "✍️", "inspect": "🧐", "finish": "🏁", "version": "🏷️", "default": "⚙️"}
var statuses = map[string]string{"success": "✅", "failure": "❌", "error": "🔥", "warning": "⚠️", "info": "ℹ️", "debug": "🐞", "skip": "⏭️", "timeout": "⏱️", "notfound": "❓", "invalid": "💢", "progress": "➡️", "ok": "✅", "default": "➡️"}

func getEmoji(m map[string]string, key string) string {
	if val, ok := m[key]; ok {
		return val
	}
	return m["default"]
}

// Logger wraps hclog.Logger with the domain/action/status call shape used
// throughout the tool.
type Logger struct {
	hclog.Logger
	format string
}

// Create builds a Logger named name, configured from VBS2EXE_LOG_LEVEL and
// VBS2EXE_LOG_FORMAT. Output goes to stderr so stdout stays usable for
// command results.
func Create(name string) Logger {
	return CreateWithOutput(name, os.Stderr)
}

// CreateWithOutput is Create with an explicit sink.
func CreateWithOutput(name string, w io.Writer) Logger {
	level := hclog.LevelFromString(strings.ToUpper(os.Getenv(LogLevelEnvVar)))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	format := strings.ToLower(os.Getenv(LogFormatEnvVar))

	opts := &hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     w,
		JSONFormat: format == FormatJSON,
	}
	return Logger{Logger: hclog.New(opts), format: format}
}

// Null returns a Logger that discards everything.
func Null() Logger {
	return Logger{Logger: hclog.NewNullLogger()}
}

// Named returns a sub-logger, keeping the console format.
func (l Logger) Named(name string) Logger {
	if l.Logger == nil {
		return l
	}
	return Logger{Logger: l.Logger.Named(name), format: l.format}
}

func (l Logger) log(level hclog.Level, domain, action, status, message string, args ...interface{}) {
	if l.Logger == nil {
		return
	}
	switch l.format {
	case FormatText:
		l.Logger.Log(level, fmt.Sprintf("[%s] %s", strings.ToUpper(domain), message), args...)
	case FormatJSON:
		l.Logger.With("domain", domain, "action", action, "status", status).Log(level, message, args...)
	default: // Emoji format
		l.Logger.Log(level, fmt.Sprintf("%s %s %s %s", getEmoji(domains, domain), getEmoji(actions, action), getEmoji(statuses, status), message), args...)
	}
}

func (l Logger) Info(domain, action, status, message string, args ...interface{}) {
	l.log(hclog.Info, domain, action, status, message, args...)
}
func (l Logger) Debug(domain, action, status, message string, args ...interface{}) {
	l.log(hclog.Debug, domain, action, status, message, args...)
}
func (l Logger) Warn(domain, action, status, message string, args ...interface{}) {
	l.log(hclog.Warn, domain, action, status, message, args...)
}
func (l Logger) Error(domain, action, status, message string, args ...interface{}) {
	l.log(hclog.Error, domain, action, status, message, args...)
}
