package security

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"showoff/internal/domain"
	"showoff/internal/infra/tracer"
)

const maxAuditLine = 1 << 20

// RetentionPolicy bounds the audit log. Zero fields are unlimited.
type RetentionPolicy struct {
	MaxAge  time.Duration
	MaxSize int64
}

// FileAuditLogger implements domain.AuditLogger by appending JSON lines to a
// file. Entries are also added to the active span as "audit.<type>" events.
type FileAuditLogger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	retention RetentionPolicy
}

// NewFileAuditLogger opens path for appending, creating it with 0600.
func NewFileAuditLogger(path string, retention RetentionPolicy) (*FileAuditLogger, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileAuditLogger{file: f, path: path, retention: retention}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// Log writes event as a single JSON line, stamping it when Timestamp is zero.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	a.mu.Lock()
	_, err = a.file.Write(append(data, '\n'))
	a.mu.Unlock()
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := []attribute.KeyValue{
			tracer.StringAttr("audit.resource", event.Resource),
			tracer.StringAttr("audit.outcome", event.Outcome),
		}
		for k, v := range event.Detail {
			attrs = append(attrs, tracer.StringAttr("audit."+k, v))
		}
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(attrs...))
	}
	return nil
}

// Close closes the underlying file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// EnforceRetention rewrites the log keeping only entries newer than MaxAge,
// then drops the oldest entries until the file fits MaxSize. It returns the
// number of entries removed. Writers block for the duration.
func (a *FileAuditLogger) EnforceRetention(now time.Time) (int, error) {
	if a.retention.MaxAge <= 0 && a.retention.MaxSize <= 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.retention.MaxAge <= 0 {
		if info, err := a.file.Stat(); err == nil && info.Size() <= a.retention.MaxSize {
			return 0, nil
		}
	}

	src, err := os.Open(a.path)
	if err != nil {
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	var cutoff time.Time
	if a.retention.MaxAge > 0 {
		cutoff = now.Add(-a.retention.MaxAge)
	}
	kept, removed, err := filterEntries(src, cutoff, a.retention.MaxSize)
	src.Close()
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}

	if err := a.file.Close(); err != nil {
		return 0, fmt.Errorf("close audit log: %w", err)
	}
	replaceErr := replaceFile(a.path, kept)
	f, err := openAppend(a.path)
	if err != nil {
		return 0, fmt.Errorf("reopen audit log: %w", err)
	}
	a.file = f
	if replaceErr != nil {
		return 0, replaceErr
	}
	return removed, nil
}

// filterEntries reads JSON lines from r and returns those to keep. Lines
// without a parseable timestamp are kept by the age check.
func filterEntries(r io.Reader, cutoff time.Time, maxSize int64) ([][]byte, int, error) {
	var (
		kept    [][]byte
		size    int64
		removed int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxAuditLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !cutoff.IsZero() {
			var entry struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if json.Unmarshal(line, &entry) == nil && !entry.Timestamp.IsZero() && entry.Timestamp.Before(cutoff) {
				removed++
				continue
			}
		}
		kept = append(kept, bytes.Clone(line))
		size += int64(len(line)) + 1
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan audit log: %w", err)
	}

	for maxSize > 0 && size > maxSize && len(kept) > 0 {
		size -= int64(len(kept[0])) + 1
		kept = kept[1:]
		removed++
	}
	return kept, removed, nil
}

// replaceFile atomically swaps path for a file holding lines.
func replaceFile(path string, lines [][]byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp audit log: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp audit log: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp audit log: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace audit log: %w", err)
	}
	return nil
}
