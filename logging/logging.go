// Package logging builds the zap logger used by the ctylookup commands: a
// console core plus an optional daily-rotated JSON file with bounded
// retention.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ctydat/config"
)

const (
	fileDateLayout = "2006-01-02"
	filePrefix     = "ctylookup-"
	fileSuffix     = ".log"
)

// New builds a logger from cfg writing human-readable lines (or JSON when
// cfg.JSON is set) to console. When cfg.Dir is set, JSON lines are also
// appended to a per-day file there. The returned close function flushes and
// closes the file.
func New(cfg config.LoggingConfig, console io.Writer) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrap(err, "logging level")
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEnc := zapcore.NewJSONEncoder(encCfg)
	if !cfg.JSON {
		humanCfg := encCfg
		humanCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(humanCfg)
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, zapcore.AddSync(console), level)}

	closeFn := func() error { return nil }
	if strings.TrimSpace(cfg.Dir) != "" {
		file, err := newDailyFile(cfg.Dir, cfg.RetentionDays)
		if err != nil {
			return nil, nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), file, level))
		closeFn = file.Close
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}, nil
}

// dailyFile is a zapcore.WriteSyncer that appends to one file per UTC day
// and prunes files older than the retention window on each rotation.
type dailyFile struct {
	dir           string
	retentionDays int
	now           func() time.Time

	mu          sync.Mutex
	currentDate string
	file        *os.File
}

func newDailyFile(dir string, retentionDays int) (*dailyFile, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create log directory %q", dir)
	}
	return &dailyFile{dir: dir, retentionDays: retentionDays, now: time.Now}, nil
}

func (d *dailyFile) Write(p []byte) (int, error) {
	now := d.now().UTC()
	date := now.Format(fileDateLayout)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil || d.currentDate != date {
		if err := d.rotateLocked(now, date); err != nil {
			return 0, err
		}
	}
	return d.file.Write(p)
}

func (d *dailyFile) rotateLocked(now time.Time, date string) error {
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}
	path := filepath.Join(d.dir, fileNameForDate(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open log file %s", path)
	}
	d.file = f
	d.currentDate = date
	if err := cleanupOldLogs(d.dir, now, d.retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "logging: cleanup failed for %s: %v\n", d.dir, err)
	}
	return nil
}

func (d *dailyFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	return d.file.Sync()
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.currentDate = ""
	return err
}

func fileNameForDate(t time.Time) string {
	return filePrefix + t.UTC().Format(fileDateLayout) + fileSuffix
}

func parseFileDate(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	parsed, err := time.ParseInLocation(fileDateLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// cleanupOldLogs keeps today's file plus retentionDays-1 earlier days.
func cleanupOldLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, day := now.UTC().Date()
	cutoff := time.Date(y, m, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(retentionDays - 1))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := parseFileDate(entry.Name())
		if ok && date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
