// Package configpush forwards a configuration blob written by an external
// administration tool to the peer, once per file version.
package configpush

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kilianp07/chairlink/core/logger"
)

// Config locates the blob and paces the checks.
type Config struct {
	// Path of the blob; an empty path disables the watcher.
	Path string `json:"path"`
	// CheckInterval throttles how often the file is stat'ed.
	CheckInterval time.Duration `json:"check_interval"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.CheckInterval == 0 {
		c.CheckInterval = time.Second
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.CheckInterval < 0 {
		return fmt.Errorf("check_interval must not be negative")
	}
	return nil
}

// Watcher polls the blob's modification time.
type Watcher struct {
	cfg  Config
	log  logger.Logger
	now  func() time.Time
	fsys fileSystem

	lastForwarded time.Time
	lastCheck     time.Time
}

type fileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (osFS) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (osFS) Remove(name string) error              { return os.Remove(name) }

// NewWatcher creates a watcher for cfg.Path.
func NewWatcher(cfg Config, log logger.Logger) *Watcher {
	cfg.SetDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	return &Watcher{cfg: cfg, log: log, now: time.Now, fsys: osFS{}}
}

// LastForwarded returns the version of the last forwarded blob.
func (w *Watcher) LastForwarded() time.Time { return w.lastForwarded }

// Pending looks for a new blob version. It returns the contents to forward
// and their version, or nil when there is nothing new. The file stays in place
// until Ack confirms delivery, so a failed publish is retried. An empty blob is
// deleted without being forwarded and a file that disappears while being
// checked is not an error.
func (w *Watcher) Pending() ([]byte, time.Time, error) {
	if w.cfg.Path == "" {
		return nil, time.Time{}, nil
	}
	now := w.now()
	if !w.lastCheck.IsZero() && now.Sub(w.lastCheck) < w.cfg.CheckInterval {
		return nil, time.Time{}, nil
	}
	w.lastCheck = now

	info, err := w.fsys.Stat(w.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("stat %s: %w", w.cfg.Path, err)
	}
	version := info.ModTime()
	if !version.After(w.lastForwarded) {
		return nil, time.Time{}, nil
	}
	data, err := w.fsys.ReadFile(w.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("read %s: %w", w.cfg.Path, err)
	}
	if len(data) == 0 {
		w.log.Debugf("discarding empty settings blob %s", w.cfg.Path)
		w.remove()
		return nil, time.Time{}, nil
	}
	return data, version, nil
}

// Ack records version as forwarded and deletes the file, unless a newer
// version replaced it in the meantime.
func (w *Watcher) Ack(version time.Time) {
	if version.After(w.lastForwarded) {
		w.lastForwarded = version
	}
	info, err := w.fsys.Stat(w.cfg.Path)
	if err != nil || info.ModTime().After(version) {
		return
	}
	w.remove()
}

func (w *Watcher) remove() {
	if err := w.fsys.Remove(w.cfg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.log.Warnf("remove %s: %v", w.cfg.Path, err)
	}
}
