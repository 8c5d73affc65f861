package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hunterlog/config"
	"hunterlog/internal/ratelimit"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "2006-01-02"
	logFilePrefix      = "hunterlog-"
	logFileSuffix      = ".log"
	maxPendingLogBytes = 16 * 1024
	logErrorInterval   = time.Minute
)

// logLine is one complete line of log output. Component is the lowercase
// "name:" prefix every package puts on its lines ("pota", "hunt", "adif"),
// or "" when the line carries none.
type logLine struct {
	at        time.Time
	component string
	text      string
}

func newLogLine(text string, at time.Time) logLine {
	return logLine{at: at.UTC(), component: logComponent(text), text: text}
}

// logComponent returns the leading "name:" tag of a log line.
func logComponent(text string) string {
	name, _, ok := strings.Cut(text, ": ")
	if !ok || name == "" {
		return ""
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 'a' || name[i] > 'z' {
			return ""
		}
	}
	return name
}

func (l logLine) stamped() string {
	return l.at.Format(logTimestampLayout) + " " + l.text
}

type logSink interface {
	emit(l logLine)
	Close() error
}

// consoleSink writes to stderr (or whatever the command was given) and
// drops the components the config marks quiet.
type consoleSink struct {
	w     io.Writer
	stamp bool
	quiet map[string]struct{}
}

func newConsoleSink(w io.Writer, stamp bool, quiet []string) *consoleSink {
	s := &consoleSink{w: w, stamp: stamp}
	for _, name := range quiet {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if s.quiet == nil {
			s.quiet = make(map[string]struct{}, len(quiet))
		}
		s.quiet[name] = struct{}{}
	}
	return s
}

func (s *consoleSink) emit(l logLine) {
	if s == nil || s.w == nil {
		return
	}
	if _, muted := s.quiet[l.component]; muted && l.component != "" {
		return
	}
	text := l.text
	if s.stamp {
		text = l.stamped()
	}
	_, _ = io.WriteString(s.w, text+"\n")
}

func (s *consoleSink) Close() error { return nil }

// dailyFileSink keeps every line, quiet components included, in one file
// per UTC day under dir and prunes days older than the retention window.
type dailyFileSink struct {
	mu        sync.Mutex
	dir       string
	retention int
	day       string
	file      *os.File
	errGate   *ratelimit.Gate
}

// Purpose: Prepare the log directory and prune expired days.
// Key aspects: Retention counts calendar days including today; a failed
// prune is reported and otherwise ignored.
// Upstream: setupLogging.
// Downstream: cleanupOldLogs.
func newDailyFileSink(dir string, retentionDays int) (*dailyFileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = config.DefaultLogRetention
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}
	s := &dailyFileSink{
		dir:       dir,
		retention: retentionDays,
		errGate:   ratelimit.NewGate(logErrorInterval, nil),
	}
	if err := cleanupOldLogs(dir, time.Now(), retentionDays); err != nil {
		s.report(fmt.Errorf("prune %s: %w", dir, err))
	}
	return s, nil
}

func (s *dailyFileSink) emit(l logLine) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if day := l.at.Format(logFileDateLayout); s.file == nil || s.day != day {
		s.switchDayLocked(l.at)
	}
	if s.file == nil {
		return
	}
	if _, err := s.file.WriteString(l.stamped() + "\n"); err != nil {
		s.report(fmt.Errorf("write %s: %w", s.file.Name(), err))
	}
}

func (s *dailyFileSink) switchDayLocked(at time.Time) {
	if s.file != nil {
		_ = s.file.Close()
		s.file, s.day = nil, ""
	}
	path := filepath.Join(s.dir, logFileNameForDate(at))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.report(fmt.Errorf("open %s: %w", path, err))
		return
	}
	s.file, s.day = f, at.Format(logFileDateLayout)
	if err := cleanupOldLogs(s.dir, at, s.retention); err != nil {
		s.report(fmt.Errorf("prune %s: %w", s.dir, err))
	}
}

// report goes straight to stderr; routing it through the logger would loop.
func (s *dailyFileSink) report(err error) {
	if _, ok := s.errGate.Tick(); ok {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
	}
}

func (s *dailyFileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.day = nil, ""
	return err
}

// logFanout is the io.Writer behind the standard logger: it reassembles
// whole lines from the write stream and hands each one to every sink.
type logFanout struct {
	mu      sync.Mutex
	pending []byte
	sinks   []logSink
	now     func() time.Time
}

// Purpose: Wire the console and optional daily file sink from config.
// Key aspects: Always returns a usable fanout; a file sink that cannot be
// created is reported through the error and left out.
// Upstream: root command PersistentPreRunE.
// Downstream: newConsoleSink, newDailyFileSink.
func setupLogging(cfg config.LoggingConfig, console io.Writer, timestamps bool) (*logFanout, error) {
	fanout := &logFanout{
		sinks: []logSink{newConsoleSink(console, timestamps, cfg.Quiet)},
		now:   time.Now,
	}
	if !cfg.Enabled {
		return fanout, nil
	}
	file, err := newDailyFileSink(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return fanout, err
	}
	fanout.sinks = append(fanout.sinks, file)
	return fanout, nil
}

// Write buffers until a newline. A partial line that outgrows
// maxPendingLogBytes is emitted as it stands.
func (f *logFanout) Write(p []byte) (int, error) {
	if f == nil {
		return len(p), nil
	}
	f.mu.Lock()
	f.pending = append(f.pending, p...)
	var texts []string
	for {
		line, rest, ok := bytes.Cut(f.pending, []byte{'\n'})
		if !ok {
			break
		}
		texts = append(texts, string(bytes.TrimSuffix(line, []byte{'\r'})))
		f.pending = rest
	}
	if len(f.pending) > maxPendingLogBytes {
		texts = append(texts, string(f.pending))
		f.pending = nil
	}
	f.pending = append([]byte(nil), f.pending...)
	sinks := f.sinks
	f.mu.Unlock()

	now := f.now()
	for _, text := range texts {
		l := newLogLine(text, now)
		for _, s := range sinks {
			s.emit(l)
		}
	}
	return len(p), nil
}

func (f *logFanout) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	sinks := f.sinks
	f.mu.Unlock()
	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func logFileNameForDate(at time.Time) string {
	return logFilePrefix + at.UTC().Format(logFileDateLayout) + logFileSuffix
}

func parseLogFileDate(name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, logFilePrefix)
	if !ok {
		return time.Time{}, false
	}
	stamp, ok = strings.CutSuffix(stamp, logFileSuffix)
	if !ok {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(logFileDateLayout, stamp, time.UTC)
	return day, err == nil
}

// cleanupOldLogs removes daily files dated before the first day of the
// retention window ending at now. Other files in dir are left alone.
func cleanupOldLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	names, err := filepath.Glob(filepath.Join(dir, logFilePrefix+"*"+logFileSuffix))
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	oldest := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1-retentionDays)
	for _, path := range names {
		if day, ok := parseLogFileDate(filepath.Base(path)); ok && day.Before(oldest) {
			_ = os.Remove(path)
		}
	}
	return nil
}
