package templates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/closingroom/pkg/observability"
)

const defaultIndexSize = 512

// Library holds the built-in templates loaded from a directory of YAML files
type Library struct {
	dir     string
	logger  *observability.Logger
	metrics *observability.Metrics

	mu        sync.RWMutex
	templates map[string]*Template

	index *lru.LRU[string, []string]
}

// NewLibrary loads every template in dir
func NewLibrary(dir string, logger *observability.Logger, metrics *observability.Metrics) (*Library, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	l := &Library{
		dir:       dir,
		logger:    logger.WithField("component", "template_library"),
		metrics:   metrics,
		templates: make(map[string]*Template),
		index:     lru.NewLRU[string, []string](defaultIndexSize, nil, 0),
	}
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Load re-reads the directory and swaps in the new set. Files that fail to parse or
// validate are logged and skipped.
func (l *Library) Load() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read template directory: %w", err)
	}

	loaded := make(map[string]*Template, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isTemplateFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		tmpl, err := l.loadFile(path)
		if err != nil {
			l.logger.WithError(err).WithField("file", path).Warn("Skipping template")
			continue
		}
		if _, dup := loaded[tmpl.Name]; dup {
			l.logger.WithField("file", path).WithField("name", tmpl.Name).Warn("Duplicate template name")
			continue
		}
		loaded[tmpl.Name] = tmpl
	}

	l.mu.Lock()
	l.templates = loaded
	l.mu.Unlock()

	l.logger.WithField("count", len(loaded)).Info("Template library loaded")
	return nil
}

func (l *Library) loadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	tmpl.Builtin = true
	tmpl.Placeholders, err = l.PlaceholdersFor(tmpl.Body)
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// Get returns a copy of the named template
func (l *Library) Get(name string) (*Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tmpl, ok := l.templates[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tmpl
	cp.Signers = append([]Signer(nil), tmpl.Signers...)
	cp.Placeholders = append([]string(nil), tmpl.Placeholders...)
	return &cp, nil
}

// List returns copies of all templates sorted by name
func (l *Library) List() []*Template {
	l.mu.RLock()
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	l.mu.RUnlock()

	sort.Strings(names)
	out := make([]*Template, 0, len(names))
	for _, name := range names {
		if tmpl, err := l.Get(name); err == nil {
			out = append(out, tmpl)
		}
	}
	return out
}

// PlaceholdersFor returns the placeholder paths of body, memoized by body hash
func (l *Library) PlaceholdersFor(body string) ([]string, error) {
	sum := sha256.Sum256([]byte(body))
	key := hex.EncodeToString(sum[:])

	if paths, ok := l.index.Get(key); ok {
		l.metrics.RecordCacheLookup("template_placeholders", true)
		return append([]string(nil), paths...), nil
	}
	l.metrics.RecordCacheLookup("template_placeholders", false)

	paths, err := Placeholders(body)
	if err != nil {
		return nil, err
	}
	l.index.Add(key, paths)
	return append([]string(nil), paths...), nil
}

// Watch reloads the library whenever a template file changes. It blocks until ctx is
// canceled.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}
	l.logger.WithField("dir", l.dir).Info("Watching template directory")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isTemplateFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			l.logger.WithField("file", event.Name).WithField("op", event.Op.String()).Debug("Template file changed")
			if err := l.Load(); err != nil {
				l.logger.WithError(err).Error("Failed to reload template library")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.WithError(err).Warn("Template watcher error")
		}
	}
}

func isTemplateFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
