package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	debugMu   sync.Mutex
	debugFile *os.File
	debugDir  string
)

// ConfigureDebug points Debug at dir and prunes older logs so that at most
// retention files remain. Calling it again switches to the new directory.
func ConfigureDebug(dir string, retention int) error {
	debugMu.Lock()
	defer debugMu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if debugFile != nil {
		_ = debugFile.Close()
		debugFile = nil
	}
	debugDir = dir

	name := filepath.Join(dir, "debug-"+time.Now().Format("20060102")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	debugFile = f

	pruneLogs(dir, retention)
	return nil
}

// CloseDebug flushes and closes the current log file.
func CloseDebug() {
	debugMu.Lock()
	defer debugMu.Unlock()
	if debugFile != nil {
		_ = debugFile.Sync()
		_ = debugFile.Close()
		debugFile = nil
	}
}

// Debug writes a message to the debug log file. It is a no-op until
// ConfigureDebug has been called.
func Debug(format string, args ...any) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	debugMu.Lock()
	defer debugMu.Unlock()
	if debugFile != nil {
		fmt.Fprintf(debugFile, "[%s] %s\n", timestamp, fmt.Sprintf(format, args...))
		debugFile.Sync() // Flush immediately
	}
}

// pruneLogs keeps the newest retention debug-*.log files in dir.
func pruneLogs(dir string, retention int) {
	if retention <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var logs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "debug-") && strings.HasSuffix(e.Name(), ".log") {
			logs = append(logs, e.Name())
		}
	}
	if len(logs) <= retention {
		return
	}

	// Names embed the date, so lexical order is chronological
	sort.Strings(logs)
	for _, name := range logs[:len(logs)-retention] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}
