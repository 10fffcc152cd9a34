package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// CommandLog represents a single command-dispatch log entry.
type CommandLog struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	Command    string    `json:"command"`
	Kind       string    `json:"kind,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	ArgCount   int       `json:"arg_count"`
	OutputSize int       `json:"output_size,omitempty"`
}

// CheckLog represents a single completed check-task log entry.
type CheckLog struct {
	Timestamp  time.Time `json:"timestamp"`
	TaskID     uint64    `json:"task_id"`
	Kind       string    `json:"kind"`
	Files      int       `json:"files"`
	Score      int       `json:"score"`
	DurationMs int64     `json:"duration_ms"`
}

// Logger handles command and check-run logging.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLogger = &Logger{enabled: true, console: true}

// Default returns the default logger.
func Default() *Logger {
	return defaultLogger
}

// SetOutput sets the log output file.
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables console output.
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// LogCommand writes a command-dispatch log entry.
func (l *Logger) LogCommand(entry *CommandLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "✓"
		if !entry.Success {
			status = "✗"
		}
		fmt.Printf("[command] %s %s %s %dms\n",
			status, entry.RequestID, entry.Command, entry.DurationMs)
		if entry.Error != "" {
			fmt.Printf("[command]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// LogCheck writes a completed check-task log entry.
func (l *Logger) LogCheck(entry *CheckLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		fmt.Printf("[check] task=%d kind=%s files=%d score=%d %dms\n",
			entry.TaskID, entry.Kind, entry.Files, entry.Score, entry.DurationMs)
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
