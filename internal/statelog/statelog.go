package statelog

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/avrdash/avrdash/internal/avr"
)

// Logger records decoded receiver state changes to CSV files with automatic
// rotation. Wire it to the driver's notification bus:
//
//	bus.Subscribe(stateLog.Record)
type Logger struct {
	mu      sync.Mutex
	dir     string
	enabled bool

	file   *os.File
	writer *csv.Writer
	rows   int
}

// Config holds state-log configuration.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

const (
	maxRowsPerFile = 100_000 // Rotate after 100k rows
)

var csvHeader = []string{"timestamp", "zone", "property", "value"}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/avrdash"
	}
	return &Logger{
		dir:     cfg.Path,
		enabled: cfg.Enabled,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record appends one state change. Safe to call from the bus dispatch
// goroutine; disabled loggers drop the row cheaply.
func (l *Logger) Record(ev avr.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	now := time.Now()
	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			log.Printf("[statelog] rotate failed: %v", err)
			return
		}
	}

	row := []string{now.Format(time.RFC3339Nano), ev.Zone, string(ev.Prop), formatValue(ev)}
	if err := l.writer.Write(row); err != nil {
		log.Printf("[statelog] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("avrdash_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[statelog] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func formatValue(ev avr.Event) string {
	switch ev.Prop {
	case avr.PropPower, avr.PropMute:
		if ev.On {
			return "1"
		}
		return "0"
	case avr.PropVolume:
		return strconv.Itoa(ev.Level)
	case avr.PropSource:
		return ev.Source
	default:
		return ""
	}
}
