package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"toolpod/pkg/logging"
)

const (
	templatesDir = "templates"
	workloadsDir = "workloads"
)

// ChangeEvent signals that a catalog file changed on disk. The host process
// can use these to restart affected workloads; the runtime itself does not
// auto-reconcile on catalog changes.
type ChangeEvent struct {
	// Path is the file that changed.
	Path string

	// Workload is true for workload records, false for templates.
	Workload bool
}

// FileStore is a YAML-directory-backed Store implementation used for local
// development and single-node deployments. The production platform backs the
// same interface with its database.
//
// Layout: <base>/templates/*.yaml and <base>/workloads/*.yaml, one document
// per file.
type FileStore struct {
	mu        sync.RWMutex
	basePath  string
	templates map[string]*Template
	workloads map[string]*DesiredWorkload
	statuses  map[string]RuntimeStatus

	debounceInterval time.Duration
}

// RuntimeStatus is the runtime's last reported view of a workload.
type RuntimeStatus struct {
	Status  string
	Message string
	Updated time.Time
}

// NewFileStore loads every template and workload document under basePath.
// Files that fail to parse or validate are skipped with a warning so one bad
// document cannot take the whole catalog down.
func NewFileStore(basePath string) (*FileStore, error) {
	s := &FileStore{
		basePath:         basePath,
		templates:        make(map[string]*Template),
		workloads:        make(map[string]*DesiredWorkload),
		statuses:         make(map[string]RuntimeStatus),
		debounceInterval: 500 * time.Millisecond,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the catalog directories from disk, replacing the in-memory
// view. Runtime statuses are preserved across reloads.
func (s *FileStore) Reload() error {
	templates := make(map[string]*Template)
	if err := s.loadDir(templatesDir, func(data []byte, path string) error {
		var tmpl Template
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return err
		}
		if err := tmpl.Validate(); err != nil {
			return err
		}
		templates[tmpl.ID] = &tmpl
		return nil
	}); err != nil {
		return err
	}

	workloads := make(map[string]*DesiredWorkload)
	if err := s.loadDir(workloadsDir, func(data []byte, path string) error {
		var w DesiredWorkload
		if err := yaml.Unmarshal(data, &w); err != nil {
			return err
		}
		if w.ID == "" || w.Name == "" || w.TemplateID == "" {
			return fmt.Errorf("id, name and templateId are required")
		}
		workloads[w.ID] = &w
		return nil
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.templates = templates
	s.workloads = workloads
	s.mu.Unlock()

	logging.Info("FileStore", "Loaded catalog from %s (%d templates, %d workloads)",
		s.basePath, len(templates), len(workloads))
	return nil
}

func (s *FileStore) loadDir(dir string, parse func(data []byte, path string) error) error {
	fullDir := filepath.Join(s.basePath, dir)
	entries, err := os.ReadDir(fullDir)
	if os.IsNotExist(err) {
		logging.Debug("FileStore", "Catalog directory %s does not exist, skipping", fullDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read catalog directory %s: %w", fullDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(fullDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Warn("FileStore", "Failed to read %s: %v", path, err)
			continue
		}
		if err := parse(data, path); err != nil {
			logging.Warn("FileStore", "Skipping %s: %v", path, err)
		}
	}
	return nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// ListDesiredWorkloads implements Store.
func (s *FileStore) ListDesiredWorkloads(ctx context.Context) ([]DesiredWorkload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DesiredWorkload, 0, len(s.workloads))
	for _, w := range s.workloads {
		out = append(out, *w)
	}
	return out, nil
}

// GetDesiredWorkload implements Store.
func (s *FileStore) GetDesiredWorkload(ctx context.Context, id string) (*DesiredWorkload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.workloads[id]
	if !exists {
		return nil, fmt.Errorf("workload %s: %w", id, ErrNotFound)
	}
	copied := *w
	return &copied, nil
}

// GetTemplate implements Store.
func (s *FileStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl, exists := s.templates[id]
	if !exists {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	copied := *tmpl
	return &copied, nil
}

// SetRuntimeStatus implements Store. The file store keeps statuses in memory
// only; they are runtime-derived and rebuilt on every boot.
func (s *FileStore) SetRuntimeStatus(ctx context.Context, id, status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workloads[id]; !exists {
		return fmt.Errorf("workload %s: %w", id, ErrNotFound)
	}
	s.statuses[id] = RuntimeStatus{Status: status, Message: message, Updated: time.Now()}
	return nil
}

// RuntimeStatuses returns a snapshot of all reported runtime statuses.
func (s *FileStore) RuntimeStatuses() map[string]RuntimeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]RuntimeStatus, len(s.statuses))
	for id, st := range s.statuses {
		out[id] = st
	}
	return out
}

// SaveDesiredWorkload persists a workload record to the catalog directory
// and the in-memory view. A record without an id gets a fresh one assigned;
// the returned record carries it. Install flows use this, then hand the
// record to the runtime.
func (s *FileStore) SaveDesiredWorkload(ctx context.Context, w DesiredWorkload) (DesiredWorkload, error) {
	if w.Name == "" || w.TemplateID == "" {
		return w, fmt.Errorf("workload name and templateId are required")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	data, err := yaml.Marshal(&w)
	if err != nil {
		return w, fmt.Errorf("failed to encode workload %s: %w", w.ID, err)
	}

	dir := filepath.Join(s.basePath, workloadsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return w, fmt.Errorf("failed to create workloads directory: %w", err)
	}
	path := filepath.Join(dir, w.ID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return w, fmt.Errorf("failed to write workload %s: %w", w.ID, err)
	}

	s.mu.Lock()
	stored := w
	s.workloads[w.ID] = &stored
	s.mu.Unlock()

	logging.Info("FileStore", "Saved workload %s (%s) to %s", w.ID, w.Name, path)
	return w, nil
}

// RemoveDesiredWorkload deletes a workload record from disk and memory.
// Removing an absent record is not an error.
func (s *FileStore) RemoveDesiredWorkload(ctx context.Context, id string) error {
	path := filepath.Join(s.basePath, workloadsDir, id+".yaml")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove workload record %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.workloads, id)
	delete(s.statuses, id)
	s.mu.Unlock()
	return nil
}

// Watch emits a debounced ChangeEvent whenever a catalog file is created,
// modified, or removed. The store is reloaded before each event is delivered,
// so consumers observe the post-change catalog. Watch blocks until ctx is
// cancelled.
func (s *FileStore) Watch(ctx context.Context, changes chan<- ChangeEvent) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range []string{templatesDir, workloadsDir} {
		fullDir := filepath.Join(s.basePath, dir)
		if err := watcher.Add(fullDir); err != nil {
			logging.Warn("FileStore", "Not watching %s: %v", fullDir, err)
		}
	}

	// Debounce per path: editors write files in bursts (truncate, write,
	// rename), and we only want one reload per burst.
	pending := make(map[string]*time.Timer)
	var pendingMu sync.Mutex

	fire := func(path string) {
		pendingMu.Lock()
		delete(pending, path)
		pendingMu.Unlock()

		if err := s.Reload(); err != nil {
			logging.Error("FileStore", err, "Failed to reload catalog after change to %s", path)
			return
		}

		event := ChangeEvent{
			Path:     path,
			Workload: filepath.Base(filepath.Dir(path)) == workloadsDir,
		}
		select {
		case changes <- event:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			pendingMu.Lock()
			for _, timer := range pending {
				timer.Stop()
			}
			pendingMu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAMLFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			path := event.Name
			pendingMu.Lock()
			if timer, exists := pending[path]; exists {
				timer.Reset(s.debounceInterval)
			} else {
				pending[path] = time.AfterFunc(s.debounceInterval, func() { fire(path) })
			}
			pendingMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("FileStore", "Catalog watcher error: %v", err)
		}
	}
}
