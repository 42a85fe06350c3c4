package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/cedarbridge/pkg/config"
)

// ErrUnsupportedSource is returned for policy store sources the local engine
// cannot read.
var ErrUnsupportedSource = errors.New("unsupported policy store source")

// defaultReloadDelay debounces bursts of file events.
const defaultReloadDelay = 500 * time.Millisecond

// Loader reads policy store documents and watches store files.
type Loader struct {
	logger      zerolog.Logger
	reloadDelay time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a new policy store loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:      logger.With().Str("component", "policy-loader").Logger(),
		reloadDelay: defaultReloadDelay,
	}
}

// SetReloadDelay changes the debounce delay of Watch.
func (l *Loader) SetReloadDelay(d time.Duration) {
	l.reloadDelay = d
}

// Load reads the document a policy store configuration points to.
func (l *Loader) Load(cfg config.PolicyStoreConfig) (*Document, error) {
	switch cfg.Source {
	case config.PolicyStoreJSON:
		return ParseDocument([]byte(cfg.Data), config.FormatJSON)
	case config.PolicyStoreYAML:
		return ParseDocument([]byte(cfg.Data), config.FormatYAML)
	case config.PolicyStoreFileJSON:
		return l.LoadFile(cfg.Path, config.FormatJSON)
	case config.PolicyStoreFileYAML:
		return l.LoadFile(cfg.Path, config.FormatYAML)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, cfg.Source)
	}
}

// LoadFile reads a document from a file.
func (l *Loader) LoadFile(path string, format config.Format) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy store: %w", err)
	}
	doc, err := ParseDocument(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Debug().
		Str("path", path).
		Int("stores", len(doc.PolicyStores)).
		Msg("Policy store loaded from file")
	return doc, nil
}

// ParseDocument decodes a JSON or YAML policy store document.
func ParseDocument(data []byte, format config.Format) (*Document, error) {
	var doc Document
	switch format {
	case config.FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON policy store: %w", err)
		}
	case config.FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML policy store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported policy store format %q", format)
	}
	return &doc, nil
}

// Watch reloads the document at path whenever the file is written or
// replaced, and passes it to reloadFn. Parse and reload failures are logged
// and passed to onError when it is not nil; the watch continues.
func (l *Loader) Watch(ctx context.Context, path string, format config.Format, reloadFn func(*Document) error, onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors replace files by rename, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.processEvents(ctx, watcher, abs, format, reloadFn, onError)

	l.logger.Info().Str("path", abs).Msg("Started watching policy store")
	return nil
}

// processEvents processes file system events and triggers reloads.
func (l *Loader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, path string, format config.Format, reloadFn func(*Document) error, onError func(error)) {
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy store changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(l.reloadDelay, func() {
				if err := l.triggerReload(path, format, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload policy store")
					if onError != nil {
						onError(err)
					}
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) triggerReload(path string, format config.Format, reloadFn func(*Document) error) error {
	doc, err := l.LoadFile(path, format)
	if err != nil {
		return fmt.Errorf("failed to reload policy store: %w", err)
	}
	if err := reloadFn(doc); err != nil {
		return fmt.Errorf("failed to apply reloaded policy store: %w", err)
	}
	l.logger.Info().Str("path", path).Msg("Policy store reloaded")
	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}
