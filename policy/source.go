package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Source loads a policy document.
type Source interface {
	Load(ctx context.Context) (*Document, error)
}

// Parse decodes a YAML or JSON policy document. The raw data must pass
// ValidatePolicy before it is decoded and validated.
func Parse(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		if jsonErr := json.Unmarshal(data, &raw); jsonErr != nil {
			return nil, fmt.Errorf("%w: parse: %v", ErrInvalidPolicy, err)
		}
	}

	if !ValidatePolicy(raw) {
		return nil, fmt.Errorf("%w: required keys are %s, %s and %s", ErrInvalidPolicy, KeyVersion, KeyRoles, KeyChannels)
	}

	var doc Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &doc,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidPolicy, err)
	}

	if doc.Roles == nil {
		doc.Roles = map[string]RoleRule{}
	}
	if doc.Channels == nil {
		doc.Channels = map[string]ChannelRule{}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// StaticSource always returns the same document.
type StaticSource struct {
	Doc *Document
}

func (s StaticSource) Load(context.Context) (*Document, error) {
	if s.Doc == nil {
		return DefaultDocument(), nil
	}
	return s.Doc.Clone(), nil
}

// FileSource loads a policy document from a local file and can watch it for
// changes.
type FileSource struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

func NewFileSource(path string) (*FileSource, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	return &FileSource{path: absPath}, nil
}

func (s *FileSource) Path() string {
	return s.path
}

func (s *FileSource) Load(_ context.Context) (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", s.path, err)
	}
	return Parse(data)
}

// Watch signals on the returned channel whenever the policy file is written
// or recreated. It does not reload anything; the receiver decides whether to
// call Enforcer.ReloadFrom. The channel closes when ctx ends or the source is
// closed.
func (s *FileSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("policy source is closed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	s.watcher = watcher

	ch := make(chan struct{}, 1)
	go s.watchLoop(ctx, watcher, filepath.Base(s.path), ch)

	return ch, nil
}

func (s *FileSource) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, name string, ch chan<- struct{}) {
	defer close(ch)

	const debounceDelay = 100 * time.Millisecond
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				debounce.Reset(debounceDelay)
			}

		case <-debounce.C:
			select {
			case ch <- struct{}{}:
				slog.Debug("policy file changed", "path", s.path)
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("policy watcher error", "path", s.path, "error", err)
		}
	}
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}

var (
	_ Source = (*FileSource)(nil)
	_ Source = StaticSource{}
)
