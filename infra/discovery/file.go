package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/session"
)

// Record is the JSON document exchanged through files.
type Record struct {
	Address   string    `json:"address"`
	Port      int       `json:"port,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileResolver reads the peer address from a file the peer keeps up to date.
type FileResolver struct {
	Path string `json:"path"`
	// MaxAge rejects stale records. Zero accepts any age.
	MaxAge time.Duration `json:"max_age"`
}

// Resolve reads and validates the record.
func (f FileResolver) Resolve(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return "", fmt.Errorf("parse %s: %w", f.Path, err)
	}
	if r.Address == "" {
		return "", fmt.Errorf("%s: %w", f.Path, ErrNoAddress)
	}
	if f.MaxAge > 0 && time.Since(r.UpdatedAt) > f.MaxAge {
		return "", fmt.Errorf("%s: record from %s is stale", f.Path, r.UpdatedAt.Format(time.RFC3339))
	}
	return r.Address, nil
}

// AnnouncerConfig configures FileAnnouncer.
type AnnouncerConfig struct {
	Path string `json:"path"`
	// PushCommand runs after the file is written, e.g.
	// ["adb", "push", "{file}", "/sdcard/chairlink.json"]. "{file}" is
	// replaced by Path.
	PushCommand []string      `json:"push_command"`
	PushTimeout time.Duration `json:"push_timeout"`
}

// SetDefaults applies sane defaults.
func (c *AnnouncerConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = filepath.Join(os.TempDir(), "chairlink-endpoint.json")
	}
	if c.PushTimeout == 0 {
		c.PushTimeout = 10 * time.Second
	}
}

// FileAnnouncer writes the local endpoint to a file and optionally pushes it
// to the peer with an external command.
type FileAnnouncer struct {
	cfg AnnouncerConfig
	log logger.Logger
	now func() time.Time
}

// NewFileAnnouncer creates an announcer.
func NewFileAnnouncer(cfg AnnouncerConfig, log logger.Logger) *FileAnnouncer {
	cfg.SetDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	return &FileAnnouncer{cfg: cfg, log: log, now: time.Now}
}

// Announce replaces the file atomically, then runs the push command.
func (a *FileAnnouncer) Announce(ctx context.Context, local session.Endpoint) error {
	data, err := json.Marshal(Record{Address: local.Address, Port: local.Port, UpdatedAt: a.now().UTC()})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(a.cfg.Path), ".endpoint-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), a.cfg.Path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	a.log.Debugw("endpoint written", map[string]any{"path": a.cfg.Path, "endpoint": local.String()})
	if len(a.cfg.PushCommand) == 0 {
		return nil
	}
	return a.push(ctx)
}

func (a *FileAnnouncer) push(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.PushTimeout)
	defer cancel()
	args := make([]string, len(a.cfg.PushCommand))
	for i, s := range a.cfg.PushCommand {
		args[i] = strings.ReplaceAll(s, "{file}", a.cfg.Path)
	}
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("push %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
