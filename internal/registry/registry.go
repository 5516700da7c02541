// Package registry is the Plugin Registry (C4): scans a configured
// directory for WebAssembly plugins, loads and initializes each through
// the sandbox Host, and keeps a name -> Plugin map that Resolve refreshes
// in place whenever a lookup finds a poisoned instance.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/OctaHive/octabot/internal/errs"
	"github.com/OctaHive/octabot/internal/logging"
	"github.com/OctaHive/octabot/internal/sandbox"
)

// Registry holds every loaded plugin, keyed by name.
type Registry struct {
	host *sandbox.Host
	log  *logging.Logger
	dir  string

	// perPluginConfig looks up a plugin's init config by name; unresolved
	// entries default to an empty JSON object.
	perPluginConfig map[string]json.RawMessage

	mu      sync.RWMutex
	plugins map[string]*sandbox.Plugin
	files   map[string]string // plugin name -> wasm path, for reloading a poisoned instance
}

// New builds an empty Registry rooted at dir. perPluginConfig is a
// host-side map of plugin name to opaque init config, matching §4.4's
// "looked up by plugin name from a host-side config map".
func New(host *sandbox.Host, log *logging.Logger, dir string, perPluginConfig map[string]json.RawMessage) *Registry {
	if perPluginConfig == nil {
		perPluginConfig = map[string]json.RawMessage{}
	}
	return &Registry{
		host:            host,
		log:             log,
		dir:             dir,
		perPluginConfig: perPluginConfig,
		plugins:         map[string]*sandbox.Plugin{},
		files:           map[string]string{},
	}
}

// Scan loads every *.wasm file under the registry's directory. A plugin
// name collision aborts with ErrDuplicatePlugin, per §4.4's boot-time
// fatal contract.
func (r *Registry) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Warnw("plugin directory missing, starting with no plugins", "dir", r.dir)
			return nil
		}
		return fmt.Errorf("read plugin dir %s: %w", r.dir, err)
	}

	loaded := map[string]*sandbox.Plugin{}
	loadedFiles := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wasm") {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), ".wasm")

		wasmBytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read plugin %s: %w", path, err)
		}
		p, err := r.host.Load(ctx, name, wasmBytes)
		if err != nil {
			return fmt.Errorf("load plugin %s: %w", path, err)
		}
		if _, exists := loaded[p.Metadata.Name]; exists {
			return fmt.Errorf("%w: %s", errs.ErrDuplicatePlugin, p.Metadata.Name)
		}

		cfg := r.perPluginConfig[p.Metadata.Name]
		if cfg == nil {
			cfg = json.RawMessage(`{}`)
		}
		if err := p.Init(ctx, cfg); err != nil {
			return fmt.Errorf("init plugin %s: %w", p.Metadata.Name, err)
		}

		loaded[p.Metadata.Name] = p
		loadedFiles[p.Metadata.Name] = path
		r.log.Infow("plugin loaded", "name", p.Metadata.Name, "version", p.Metadata.Version, "file", entry.Name())
	}

	r.mu.Lock()
	old := r.plugins
	r.plugins = loaded
	r.files = loadedFiles
	r.mu.Unlock()

	for name, p := range old {
		if _, kept := loaded[name]; !kept {
			_ = p.Close(ctx)
		}
	}
	return nil
}

// Resolve looks up a plugin by name. A missing plugin is not fatal to the
// engine; the caller reports ErrUnknownPlugin and fails only the task. A
// plugin left poisoned by an abandoned call (see sandbox.Plugin.Poisoned)
// is transparently reloaded from disk before being handed back.
func (r *Registry) Resolve(ctx context.Context, name string) (*sandbox.Plugin, error) {
	r.mu.RLock()
	p, ok := r.plugins[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownPlugin, name)
	}
	if !p.Poisoned() {
		return p, nil
	}
	return r.reload(ctx, name, p)
}

// reload replaces a poisoned plugin instance with a freshly loaded one from
// the same wasm file. The stale instance is closed in the background since
// its abandoned goroutine may still be running against it.
func (r *Registry) reload(ctx context.Context, name string, stale *sandbox.Plugin) (*sandbox.Plugin, error) {
	r.mu.RLock()
	path, ok := r.files[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownPlugin, name)
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reload plugin %s: %w", name, err)
	}
	fresh, err := r.host.Load(ctx, name, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("reload plugin %s: %w", name, err)
	}
	cfg := r.perPluginConfig[fresh.Metadata.Name]
	if cfg == nil {
		cfg = json.RawMessage(`{}`)
	}
	if err := fresh.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("reload init plugin %s: %w", name, err)
	}

	r.mu.Lock()
	cur := r.plugins[name]
	if cur == stale {
		r.plugins[name] = fresh
	}
	r.mu.Unlock()

	if cur != stale {
		// Another caller already won the race and reloaded it first.
		_ = fresh.Close(ctx)
		r.log.Warnw("plugin reload raced, discarding redundant instance", "name", name)
		return cur, nil
	}

	r.log.Warnw("plugin instance reloaded after an abandoned call", "name", name)
	go func() {
		_ = stale.Close(context.Background())
	}()
	return fresh, nil
}

// Names returns every currently loaded plugin name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		out = append(out, name)
	}
	return out
}

// Close releases every loaded plugin instance.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, p := range r.plugins {
		if err := p.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.plugins = map[string]*sandbox.Plugin{}
	return firstErr
}
