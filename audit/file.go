package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileSink writes `[HH:MM:SS] [Level] message` lines to one file per UTC day.
type FileSink struct {
	dir string
	min Level

	mu  sync.Mutex
	now func() time.Time
}

func NewFileSink(dir string, minLevel Level) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &FileSink{dir: dir, min: minLevel, now: time.Now}, nil
}

// Path returns the file records stamped at t go to.
func (s *FileSink) Path(t time.Time) string {
	return filepath.Join(s.dir, t.UTC().Format("2006-01-02")+".log")
}

func (s *FileSink) Append(_ context.Context, r Record) error {
	if r.Level < s.min {
		return nil
	}
	t := r.Time
	if t.IsZero() {
		t = s.now()
	}
	return s.WriteLine(t, r.Level, r.Message())
}

// WriteLine appends a raw message. Newlines are flattened so one record is
// always one line.
func (s *FileSink) WriteLine(t time.Time, level Level, msg string) error {
	if level < s.min {
		return nil
	}
	msg = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(msg)
	line := fmt.Sprintf("[%s] [%s] %s\n", t.UTC().Format("15:04:05"), level, msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(t), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("write audit file: %w", err)
	}
	return f.Close()
}

// Prune removes daily files older than retention and returns how many went.
func (s *FileSink) Prune(retention time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read audit dir: %w", err)
	}

	cutoff := s.now().Add(-retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		day, err := time.Parse("2006-01-02", strings.TrimSuffix(e.Name(), ".log"))
		if err != nil {
			continue
		}
		if day.Add(24 * time.Hour).Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
