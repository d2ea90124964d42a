package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditIgnoresGlobalLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	al := NewAudit(&buf)
	al.Log().Int64("student_key", 812345678).Msg("Queued score")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["stream"])
	assert.Equal(t, "Queued score", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestInitAuditAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")

	closer, err := InitAudit(path)
	require.NoError(t, err)
	al := Audit()
	al.Log().Msg("first")
	require.NoError(t, closer.Close())

	closer, err = InitAudit(path)
	require.NoError(t, err)
	al = Audit()
	al.Log().Msg("second")
	require.NoError(t, closer.Close())
	t.Cleanup(func() { SetAudit(zerolog.Nop()) })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	assert.Len(t, lines, 2)
}
