package adif

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"hunterlog/store"
)

const (
	// BackupFile is the default name of the append-only backup log.
	BackupFile = "hunter.adi"
	programID  = "hunterlog"
	udpTimeout = 2 * time.Second
)

// Log is the dual sink: an append-only ADIF file plus a UDP datagram per
// record. Safe for concurrent use within one process.
type Log struct {
	path   string
	logger *log.Logger
	mu     sync.Mutex
}

// Option customizes Open.
type Option func(*Log)

// WithLogger routes UDP and file diagnostics to logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// Purpose: Prepare the backup log at path.
// Key aspects: The header is written only when the file does not exist yet;
// an existing file is never truncated.
// Upstream: main wiring.
// Downstream: writeHeader.
func Open(path, version string, opts ...Option) (*Log, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("adif: empty log path")
	}
	l := &Log{path: path}
	for _, opt := range opts {
		opt(l)
	}
	if _, err := os.Stat(path); err == nil {
		return l, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("adif: stat %s: %w", path, err)
	}
	if err := writeHeader(path, version, time.Now()); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the backup file location.
func (l *Log) Path() string { return l.path }

func writeHeader(path, version string, created time.Time) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("adif: ensure dir: %w", err)
		}
	}
	var b strings.Builder
	b.WriteString("HUNTER LOG backup log\n")
	b.WriteString("Created " + created.Format("2006-01-02 15:04:05.000000") + "\n")
	b.WriteString(Field("programid", programID) + "\n")
	b.WriteString(Field("programversion", version) + "\n")
	b.WriteString("<EOH>\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("adif: write header: %w", err)
	}
	return nil
}

// Purpose: Emit one QSO to both sinks.
// Key aspects: The two sinks are independent. The datagram is sent even when
// the append fails; a UDP failure is only logged, an append failure is
// returned after the send was attempted.
// Upstream: hunt.Pipeline.LogContact.
// Downstream: Build, appendRecord, sendUDP.
func (l *Log) LogQSO(q store.QSO, st Station) error {
	record := Build(q, st)
	appendErr := l.appendRecord(record)
	if err := sendUDP(record, st.Host, st.Port); err != nil {
		l.logf("adif: udp send to %s failed: %v", net.JoinHostPort(st.Host, strconv.Itoa(st.Port)), err)
	}
	return appendErr
}

// appendRecord opens, writes and closes per call.
func (l *Log) appendRecord(record string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("adif: open %s: %w", l.path, err)
	}
	if _, err := f.WriteString(record + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("adif: append %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("adif: close %s: %w", l.path, err)
	}
	return nil
}

func sendUDP(record, host string, port int) error {
	host = strings.TrimSpace(host)
	if host == "" || port <= 0 {
		return fmt.Errorf("no udp target configured")
	}
	conn, err := net.DialTimeout("udp", net.JoinHostPort(host, strconv.Itoa(port)), udpTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(udpTimeout))
	_, err = conn.Write([]byte(record))
	return err
}

func (l *Log) logf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// ExportName returns the export file name for now.
func ExportName(now time.Time) string {
	return now.Format("20060102-150405") + "_export.adi"
}

// Purpose: Write every given QSO to a fresh timestamped export file.
// Key aspects: Records only, framed as in the backup log; no header block
// and no UDP. An existing file of the same name is truncated.
// Upstream: export command.
// Downstream: Build, appendRecord.
func ExportAll(qsos []store.QSO, st Station, dir string, now time.Time) (string, error) {
	path := filepath.Join(dir, ExportName(now))
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("adif: ensure dir: %w", err)
		}
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return "", fmt.Errorf("adif: create %s: %w", path, err)
	}
	l := &Log{path: path}
	for _, q := range qsos {
		if err := l.appendRecord(Build(q, st)); err != nil {
			return path, err
		}
	}
	return path, nil
}
