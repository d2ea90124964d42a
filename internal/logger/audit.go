package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

var (
	auditMu sync.RWMutex
	audit   = zerolog.Nop()
)

// InitAudit opens the append-only activity log that records every score
// submitted, queued, or skipped. The returned closer releases the file.
func InitAudit(path string) (io.Closer, error) {
	if path == "" {
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	SetAudit(NewAudit(f))
	return f, nil
}

// NewAudit builds an audit logger writing timestamped entries to w. Entries
// are written with Log() so the global level never filters them.
func NewAudit(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().
		Timestamp().
		Str("stream", "audit").
		Logger()
}

func SetAudit(l zerolog.Logger) {
	auditMu.Lock()
	defer auditMu.Unlock()
	audit = l
}

func Audit() zerolog.Logger {
	auditMu.RLock()
	defer auditMu.RUnlock()
	return audit
}
