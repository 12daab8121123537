package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/me/keysweep/pkg/model"
)

// CursorFile persists the cursor as a single plain-text integer.
// Writes go through a temp file and rename so a crash never leaves a torn value.
type CursorFile struct {
	path   string
	logger *slog.Logger
}

// NewCursorFile returns a CursorFile for path.
func NewCursorFile(path string, logger *slog.Logger) *CursorFile {
	return &CursorFile{
		path:   path,
		logger: logger.With("component", "state"),
	}
}

// Path returns the state file location.
func (c *CursorFile) Path() string {
	return c.path
}

// Load reads the cursor. A missing or empty file means no progress was
// recorded; an unreadable or unparsable file is logged and treated the same way.
func (c *CursorFile) Load() uint64 {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		c.logger.Info("no state file, starting from 0", "path", c.path)
		return 0
	}
	if err != nil {
		c.logger.Warn("could not read state file, starting from 0", "path", c.path, "error", err)
		return 0
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		c.logger.Info("state file is empty, starting from 0", "path", c.path)
		return 0
	}
	v, err := strconv.ParseUint(content, 10, 64)
	if err != nil {
		c.logger.Warn("could not parse state file, starting from 0", "path", c.path, "error", err)
		return 0
	}
	return v
}

// Save overwrites the state file with cursor.
func (c *CursorFile) Save(cursor uint64) error {
	if err := writeFileAtomic(c.path, []byte(strconv.FormatUint(cursor, 10))); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStatePersist, err)
	}
	c.logger.Debug("state saved", "cursor", cursor)
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".keysweep-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
