// Package prompt resolves prompt templates by stage identity.
//
// Defaults ship embedded in the binary; an optional on-disk directory
// overrides them by filename and is hot-reloaded on change, so prompt text
// can be tuned without redeploying. The core pipeline only ever asks
// "given a stage name, render its template" — it never hardcodes prompt
// strings.
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
)

//go:embed defaults/*.tmpl
var defaultsFS embed.FS

// Template names used by the pipeline.
const (
	GeneratorSystem = "generator_system"
	Generator       = "generator"
	Evaluator       = "evaluator"
	Synthesizer     = "synthesizer"
)

// Store resolves and renders prompt templates.
// Safe for concurrent use; Render may run while a reload is in progress.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*template.Template

	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *slog.Logger
}

// NewStore creates a Store with embedded defaults. If dir is non-empty,
// *.tmpl files in it override the defaults by base name and the directory
// is watched for changes.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		templates: make(map[string]*template.Template),
		dir:       dir,
		done:      make(chan struct{}),
		logger:    logger,
	}

	if err := s.loadDefaults(); err != nil {
		return nil, err
	}

	if dir != "" {
		if err := s.loadDir(); err != nil {
			return nil, err
		}
		if err := s.watch(); err != nil {
			// Hot reload is best-effort; overrides loaded above still apply.
			logger.Warn("prompt directory watch disabled", "dir", dir, "error", err)
		}
	}

	return s, nil
}

// Render resolves the named template and executes it with data.
func (s *Store) Render(name string, data any) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", name, err)
	}
	return sb.String(), nil
}

// Close stops the directory watcher, if any.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}

func (s *Store) loadDefaults() error {
	entries, err := fs.ReadDir(defaultsFS, "defaults")
	if err != nil {
		return fmt.Errorf("reading embedded prompts: %w", err)
	}

	for _, entry := range entries {
		data, err := defaultsFS.ReadFile("defaults/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading embedded prompt %s: %w", entry.Name(), err)
		}
		if err := s.set(entry.Name(), string(data)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadDir() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading prompt directory %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".tmpl" {
			continue
		}
		if err := s.loadFile(filepath.Join(s.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading prompt file %s: %w", path, err)
	}
	if err := s.set(filepath.Base(path), string(data)); err != nil {
		return err
	}
	s.logger.Debug("loaded prompt override", "file", path)
	return nil
}

// set parses text and stores it under the filename's base name.
func (s *Store) set(filename, text string) error {
	name := strings.TrimSuffix(filename, ".tmpl")

	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return fmt.Errorf("parsing prompt template %q: %w", name, err)
	}

	s.mu.Lock()
	s.templates[name] = tmpl
	s.mu.Unlock()
	return nil
}

// watch reloads changed override files until Close is called.
func (s *Store) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case <-s.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if filepath.Ext(event.Name) != ".tmpl" {
					continue
				}
				if err := s.loadFile(event.Name); err != nil {
					s.logger.Warn("reloading prompt override", "file", event.Name, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("prompt watcher error", "error", err)
			}
		}
	}()

	return nil
}
