package logging

import (
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Size and retention limits of each daily file
const (
	maxFileSizeMB = 100
	maxBackups    = 3
	maxAgeDays    = 14
)

// dailyFile writes to cunzhi-YYYY-MM-DD.log for the current day and moves to
// a new file when the date changes. Each day's file is size-capped by
// lumberjack.
type dailyFile struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	name string
	out  *lumberjack.Logger
}

func newDailyFile(dir string, now func() time.Time) *dailyFile {
	if now == nil {
		now = time.Now
	}
	return &dailyFile{dir: dir, now: now}
}

// current returns the writer for today; d.mu must be held
func (d *dailyFile) current() *lumberjack.Logger {
	name := FileName(d.now())
	if d.out != nil && name == d.name {
		return d.out
	}

	if d.out != nil {
		_ = d.out.Close()
	}
	d.name = name
	d.out = &lumberjack.Logger{
		Filename:   filepath.Join(d.dir, name),
		MaxSize:    maxFileSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return d.out
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current().Write(p)
}

// Sync is a no-op: lumberjack writes straight to the file
func (d *dailyFile) Sync() error {
	return nil
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out == nil {
		return nil
	}
	err := d.out.Close()
	d.out = nil
	return err
}
