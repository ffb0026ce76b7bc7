// Package logger writes the tunnel's log file and defines the Logf hook
// every component logs through.
package logger

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Logf is a printf-style logging hook. Components take a Logf instead of
// calling the package functions directly so hosts and tests can redirect
// their diagnostics.
type Logf func(format string, args ...any)

// Discard is a Logf that drops everything.
func Discard(string, ...any) {}

// WithPrefix returns a Logf that prepends prefix to every message.
func WithPrefix(logf Logf, prefix string) Logf {
	if logf == nil {
		return Discard
	}
	return func(format string, args ...any) {
		logf(prefix+format, args...)
	}
}

// fileName is the log file created in the platform log directory.
const fileName = "wg-tunnel.log"

var (
	mu        sync.Mutex
	file      *os.File
	path      string
	listeners = map[int]func(string){}
	nextID    int

	log = zerolog.New(zerolog.ConsoleWriter{
		Out:         sink{},
		NoColor:     true,
		TimeFormat:  "2006-01-02 15:04:05",
		PartsOrder:  []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatLevel: formatLevel,
	}).With().Timestamp().Logger()
)

// connLevel tags tunnel state changes; zerolog has no level for them.
const connLevel = "conn"

var levelTags = map[string]string{
	zerolog.LevelDebugValue: "DEBUG:",
	zerolog.LevelInfoValue:  "INFO:",
	zerolog.LevelWarnValue:  "WARN:",
	zerolog.LevelErrorValue: "ERROR:",
	connLevel:               "CONN:",
}

func formatLevel(i any) string {
	s, _ := i.(string)
	if tag, ok := levelTags[s]; ok {
		return tag
	}
	return strings.ToUpper(s) + ":"
}

// sink receives each formatted line and fans it out to the log file and
// the listeners.
type sink struct{}

func (sink) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")

	mu.Lock()
	if file != nil {
		file.Write(p)
	}
	fns := make([]func(string), 0, len(listeners))
	for _, fn := range listeners {
		fns = append(fns, fn)
	}
	mu.Unlock()

	for _, fn := range fns {
		fn(line)
	}
	return len(p), nil
}

// DefaultPath returns the log file used when no path is configured.
func DefaultPath() string {
	return filepath.Join(getLogDir(), fileName)
}

// Init opens the log file at p for appending, or DefaultPath when p is
// empty. A previously opened file is closed.
func Init(p string) error {
	if p == "" {
		p = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
	}
	file, path = f, p
	return nil
}

// CaptureStderr points the process stderr at the log file so runtime
// panics end up there. It does nothing before Init.
func CaptureStderr() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		redirectStderr(file)
	}
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
}

// Path returns the open log file, or "" before Init.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return path
}

// AddListener registers fn to receive every formatted log line. Listeners
// run on the logging goroutine and must not block. The returned func
// removes fn.
func AddListener(fn func(string)) (remove func()) {
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	listeners[id] = fn
	return func() {
		mu.Lock()
		delete(listeners, id)
		mu.Unlock()
	}
}

// Info logs an informational message.
func Info(format string, args ...any) { log.Info().Msgf(format, args...) }

// Error logs an error.
func Error(format string, args ...any) { log.Error().Msgf(format, args...) }

// Debug logs a diagnostic message.
func Debug(format string, args ...any) { log.Debug().Msgf(format, args...) }

// Warning logs a warning.
func Warning(format string, args ...any) { log.Warn().Msgf(format, args...) }

// Connection logs a tunnel state change.
func Connection(format string, args ...any) {
	log.Log().Str(zerolog.LevelFieldName, connLevel).Msgf(format, args...)
}

// Recover should be deferred at the top of every goroutine to catch panics.
// Usage: go func() { defer logger.Recover("myGoroutine"); ... }()
func Recover(name string) {
	if r := recover(); r != nil {
		Error("PANIC in %s: %v\n%s", name, r, debug.Stack())
	}
}

// SafeGo launches a goroutine with panic recovery.
func SafeGo(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// ReadLogs returns the contents of the log file at p, or of DefaultPath
// when p is empty.
func ReadLogs(p string) (string, error) {
	if p == "" {
		p = DefaultPath()
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ClearLogs truncates the log file at p, or DefaultPath when p is empty.
// An open log file keeps appending from the start.
func ClearLogs(p string) error {
	if p == "" {
		p = DefaultPath()
	}
	if err := os.Truncate(p, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
