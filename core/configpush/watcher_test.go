package configpush

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "joystick_settings.json")
	w := NewWatcher(Config{Path: path, CheckInterval: time.Nanosecond}, nil)
	return w, path
}

func writeBlob(t *testing.T, path, data string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestPendingForwardsOncePerVersion(t *testing.T) {
	w, path := newTestWatcher(t)
	v1 := time.Now().Add(-time.Minute).Truncate(time.Second)
	writeBlob(t, path, `{"deadzone":15}`, v1)

	data, version, err := w.Pending()
	require.NoError(t, err)
	assert.Equal(t, `{"deadzone":15}`, string(data))
	assert.True(t, version.Equal(v1))
	assert.FileExists(t, path, "blob stays until acknowledged")

	w.Ack(version)
	assert.NoFileExists(t, path, "acknowledged blob is deleted")
	assert.True(t, w.LastForwarded().Equal(v1))

	data, _, err = w.Pending()
	require.NoError(t, err)
	assert.Nil(t, data)

	writeBlob(t, path, `stale`, v1)
	data, _, err = w.Pending()
	require.NoError(t, err)
	assert.Nil(t, data, "same version is not forwarded twice")

	writeBlob(t, path, `{"deadzone":20}`, v1.Add(time.Second))
	data, _, err = w.Pending()
	require.NoError(t, err)
	assert.Equal(t, `{"deadzone":20}`, string(data))
}

func TestPendingWithoutAckIsRetried(t *testing.T) {
	w, path := newTestWatcher(t)
	v1 := time.Now().Add(-time.Minute).Truncate(time.Second)
	writeBlob(t, path, "settings", v1)

	data, _, err := w.Pending()
	require.NoError(t, err)
	require.Equal(t, "settings", string(data))

	// Delivery failed: nothing was acknowledged.
	data, version, err := w.Pending()
	require.NoError(t, err)
	assert.Equal(t, "settings", string(data))
	assert.True(t, w.LastForwarded().IsZero())

	w.Ack(version)
	assert.NoFileExists(t, path)
}

func TestAckKeepsNewerVersion(t *testing.T) {
	w, path := newTestWatcher(t)
	v1 := time.Now().Add(-time.Minute).Truncate(time.Second)
	writeBlob(t, path, "old", v1)

	_, version, err := w.Pending()
	require.NoError(t, err)
	writeBlob(t, path, "new", v1.Add(time.Second))
	w.Ack(version)

	assert.FileExists(t, path, "newer blob survives the ack of the older one")
	data, _, err := w.Pending()
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestPendingEmptyBlobIsDeleted(t *testing.T) {
	w, path := newTestWatcher(t)
	writeBlob(t, path, "", time.Now())

	data, _, err := w.Pending()
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.NoFileExists(t, path)
	assert.True(t, w.LastForwarded().IsZero())
}

func TestPendingMissingFile(t *testing.T) {
	w, _ := newTestWatcher(t)
	data, _, err := w.Pending()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestPendingDisabled(t *testing.T) {
	w := NewWatcher(Config{}, nil)
	data, _, err := w.Pending()
	assert.NoError(t, err)
	assert.Nil(t, data)
}

type vanishingFS struct {
	info fs.FileInfo
}

func (v vanishingFS) Stat(string) (fs.FileInfo, error) { return v.info, nil }
func (vanishingFS) ReadFile(string) ([]byte, error)    { return nil, fs.ErrNotExist }
func (vanishingFS) Remove(string) error                { return fs.ErrNotExist }

func TestPendingToleratesReadRace(t *testing.T) {
	w, path := newTestWatcher(t)
	writeBlob(t, path, "x", time.Now())
	info, err := os.Stat(path)
	require.NoError(t, err)
	w.fsys = vanishingFS{info: info}

	data, _, err := w.Pending()
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestPendingIsThrottled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	w := NewWatcher(Config{Path: path, CheckInterval: time.Hour}, nil)
	now := time.Now()
	w.now = func() time.Time { return now }

	_, _, err := w.Pending()
	require.NoError(t, err)
	writeBlob(t, path, "data", now)

	data, _, err := w.Pending()
	require.NoError(t, err)
	assert.Nil(t, data, "second check inside the interval is skipped")

	now = now.Add(2 * time.Hour)
	data, _, err = w.Pending()
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
