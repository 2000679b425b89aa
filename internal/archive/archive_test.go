package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atasvc/sonata/pkg/obsmodel"
)

func TestEnsureCreatesFixedLayout(t *testing.T) {
	l := NewLayout(filepath.Join(t.TempDir(), "archive"))
	require.NoError(t, l.Ensure())

	for _, d := range []string{l.TempLogs(), l.PermLogs(), l.SystemLogs(), l.ErrorLogs(), l.System(), l.ConfirmData()} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestActivityDirNamesByTimeIDAndType(t *testing.T) {
	l := NewLayout(t.TempDir())
	require.NoError(t, l.Ensure())

	start := time.Date(2009, 3, 14, 15, 9, 26, 0, time.UTC)
	dir, err := l.ActivityDir(start, obsmodel.ActivityID(42), "target")
	require.NoError(t, err)

	assert.Equal(t, "2009-03-14_15-09-26.act42.target", filepath.Base(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteSystemConfigSnapshotOverwritesAtomically(t *testing.T) {
	l := NewLayout(t.TempDir())
	require.NoError(t, l.Ensure())

	require.NoError(t, l.WriteSystemConfigSnapshot(map[string]string{"key": "first"}))
	require.NoError(t, l.WriteSystemConfigSnapshot(map[string]string{"key": "second"}))

	data, err := os.ReadFile(filepath.Join(l.System(), "system-config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "second")
	assert.NotContains(t, string(data), "first")

	_, err = os.Stat(filepath.Join(l.System(), "system-config.yaml.tmp"))
	assert.True(t, os.IsNotExist(err), "the temp file must not survive the rename")
}

func TestActivityLogAppendsInOrder(t *testing.T) {
	l := NewLayout(t.TempDir())
	require.NoError(t, l.Ensure())

	alog, err := OpenActivityLog(l)
	require.NoError(t, err)
	defer alog.Close()

	at := time.Unix(1_700_000_000, 0)
	require.NoError(t, alog.Append(at, "activity 1 started"))
	require.NoError(t, alog.Append(at.Add(time.Second), "activity 1 complete"))

	data, err := os.ReadFile(filepath.Join(l.SystemLogs(), "activity.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "activity 1 started")
	assert.Contains(t, lines[1], "activity 1 complete")
}
