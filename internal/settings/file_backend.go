package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

const fileWatchDebounce = 100 * time.Millisecond

// FileBackend stores settings as a JSON document, replaced atomically on save.
type FileBackend struct {
	path     string
	debounce time.Duration
	mu       sync.Mutex
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: filepath.Clean(strings.TrimSpace(path)), debounce: fileWatchDebounce}
}

func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Load(context.Context) (*dupes.Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var settings dupes.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("decode settings file %s: %w", b.path, err)
	}
	return &settings, nil
}

func (b *FileBackend) Save(_ context.Context, settings dupes.Settings) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *FileBackend) Close() error {
	return nil
}

// Watch calls onChange after the settings file is written, created or
// replaced. Bursts of events are collapsed into one call.
func (b *FileBackend) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var timerMu sync.Mutex
	var timer *time.Timer
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != b.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(b.debounce, onChange)
			timerMu.Unlock()
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return watchErr
		}
	}
}

var _ Watcher = (*FileBackend)(nil)
