package badge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileIndicator mirrors the status glyph into a small file that taskbar
// or tmux widgets can poll. Writes go through a rename so readers never
// see a partial file.
type FileIndicator struct {
	path string
}

func NewFileIndicator(path string) *FileIndicator {
	return &FileIndicator{path: path}
}

func (f *FileIndicator) SetText(text string) error {
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("badge file: %w", err)
	}
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return fmt.Errorf("badge file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("badge file: %w", err)
	}
	return nil
}

func (f *FileIndicator) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("badge file: %w", err)
	}
	return nil
}

// LogIndicator is the fallback when no status file is configured.
type LogIndicator struct {
	logger zerolog.Logger
}

func NewLogIndicator(logger zerolog.Logger) *LogIndicator {
	return &LogIndicator{logger: logger}
}

func (l *LogIndicator) SetText(text string) error {
	l.logger.Info().Str("badge", text).Msg("status badge changed")
	return nil
}

func (l *LogIndicator) Clear() error {
	l.logger.Info().Msg("status badge cleared")
	return nil
}
