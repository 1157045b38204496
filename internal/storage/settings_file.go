package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

// FileSettingsStore keeps the settings as a JSON file. Writes replace the
// whole file atomically.
type FileSettingsStore struct {
	Path string
}

func NewFileSettingsStore(path string) *FileSettingsStore {
	return &FileSettingsStore{Path: path}
}

func (f *FileSettingsStore) Load(ctx context.Context) (data.Settings, error) {
	if err := ctx.Err(); err != nil {
		return data.DefaultSettings(), err
	}
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return data.DefaultSettings(), fmt.Errorf("%w: %s", ErrSettingsNotFound, f.Path)
	}
	if err != nil {
		return data.DefaultSettings(), fmt.Errorf("read settings %q: %w", f.Path, err)
	}
	return DecodeSettings(raw)
}

func (f *FileSettingsStore) Save(ctx context.Context, s data.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := EncodeSettings(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := renameio.WriteFile(f.Path, payload, 0o644); err != nil {
		return fmt.Errorf("replace settings %q: %w", f.Path, err)
	}
	return nil
}
