package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ManifestFileName is the name of the tenant/source manifest file.
const ManifestFileName = "omniquery.yaml"

// ManifestFileNameAlt is the alternate name of the manifest file.
const ManifestFileNameAlt = "omniquery.yml"

// LoadFromDir loads a Manifest from the given directory. It looks for
// omniquery.yaml or omniquery.yml, then overlays any OMNIQUERY_-prefixed
// environment variables (e.g. OMNIQUERY_SOURCES__GITHUB__AUTH_TOKEN).
// Returns nil, nil if no manifest file is found — that is not an error
// condition, callers may run with an empty manifest in tests.
func LoadFromDir(dir string) (*Manifest, error) {
	path := findManifestFile(dir)
	if path == "" {
		return nil, nil
	}
	return Load(path)
}

// Load loads a Manifest from an explicit file path.
func Load(path string) (*Manifest, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	if err := k.Load(env.Provider("OMNIQUERY_", "__", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("config: loading env overlay: %w", err)
	}

	var m Manifest
	if err := k.Unmarshal("", &m); err != nil {
		return nil, fmt.Errorf("config: unmarshalling manifest: %w", err)
	}

	ApplyDefaults(&m)
	return &m, nil
}

func envKeyTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "OMNIQUERY_"))
}

func findManifestFile(dir string) string {
	yamlPath := filepath.Join(dir, ManifestFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, ManifestFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}
	return ""
}

// FindProjectRoot walks up from startDir to find a directory containing
// omniquery.yaml or omniquery.yml. Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findManifestFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Watcher reloads the manifest from disk whenever the underlying file
// changes, so a tenant table registry edit takes effect without a restart.
type Watcher struct {
	path   string
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	onLoad func(*Manifest)
}

// NewWatcher starts watching path for writes, invoking onLoad with each
// successfully reloaded Manifest. The returned Watcher must be closed by the
// caller.
func NewWatcher(path string, logger *slog.Logger, onLoad func(*Manifest)) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	w := &Watcher{path: path, logger: logger, fsw: fsw, onLoad: onLoad}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m, err := Load(w.path)
			if err != nil {
				w.logger.Error("config: reload failed", "path", w.path, "error", err)
				continue
			}
			w.logger.Info("config: manifest reloaded", "path", w.path)
			w.onLoad(m)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config: watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
