// Package sandbox is the Plugin Sandbox (C3): hosts one WebAssembly module
// per plugin via wazero, wires the fixed capability set (env, stdio,
// random, clocks, sandboxed filesystem, outbound HTTP, key-value store),
// enforces a per-invocation timeout, and captures stdout/stderr into
// bounded buffers instead of letting them interleave with host logs.
//
// The original implementation hosts a genuine WebAssembly *component*
// (wasmtime's component model, `.wit`-typed). wazero has no component-
// model support, so the sandbox instead defines its own minimal ABI on
// top of core wasm: every plugin module exports alloc/dealloc plus
// load/init/process functions that exchange JSON through guest memory
// (see abi.go). This is a deliberate, documented simplification of the
// original's typed component interface.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/OctaHive/octabot/internal/domain"
	"github.com/OctaHive/octabot/internal/errs"
	"github.com/OctaHive/octabot/internal/kv"
	"github.com/OctaHive/octabot/internal/logging"
)

// Host owns the wazero runtime and the capability implementations shared
// by every loaded plugin.
type Host struct {
	runtime  wazero.Runtime
	kv       *kv.Store
	httpCap  *httpCapability
	log      *logging.Logger
	fsRoot   string
}

// NewHost constructs the shared wazero runtime and links WASI plus the
// host-defined capability module. fsRoot is the directory each plugin's
// sandboxed filesystem view is rooted at.
func NewHost(ctx context.Context, kvStore *kv.Store, log *logging.Logger, fsRoot string) (*Host, error) {
	runtime := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}

	h := &Host{
		runtime: runtime,
		kv:      kvStore,
		httpCap: newHTTPCapability(),
		log:     log,
		fsRoot:  fsRoot,
	}
	if err := h.linkCapabilities(ctx); err != nil {
		runtime.Close(ctx)
		return nil, err
	}
	return h, nil
}

// Close tears down the wazero runtime and every plugin instantiated from it.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// linkCapabilities registers the "octabot" host module: kv_get, kv_set,
// http_request and log, each bound to the plugin instance that calls them
// via a per-module capability set stashed in the module's context (see
// capabilities.go).
func (h *Host) linkCapabilities(ctx context.Context) error {
	_, err := h.runtime.NewHostModuleBuilder("octabot").
		NewFunctionBuilder().WithFunc(h.hostKVGet).Export("kv_get").
		NewFunctionBuilder().WithFunc(h.hostKVSet).Export("kv_set").
		NewFunctionBuilder().WithFunc(h.hostHTTPRequest).Export("http_request").
		NewFunctionBuilder().WithFunc(h.hostLog).Export("log").
		Instantiate(ctx)
	return err
}

// Plugin is one loaded WebAssembly module, ready for Init/Process calls.
// Calls are serialized by mu, satisfying the sandbox's "no shared mutable
// state" contract without needing a pool of pre-instantiated copies.
type Plugin struct {
	Name     string
	Metadata domain.Metadata

	host    *Host
	mod     api.Module
	abi     *guestABI
	loadFn  api.Function
	initFn  api.Function
	procFn  api.Function
	mu      sync.Mutex

	// poisoned is set once a call is abandoned to a timeout or outer
	// cancellation. wazero has no mid-call abort, so the abandoned
	// goroutine keeps running against mod after Process returns; the
	// instance's guest memory can no longer be trusted for further calls.
	poisoned atomic.Bool
}

// Poisoned reports whether a prior call was abandoned mid-flight, leaving
// this instance unsafe to reuse. The registry checks this on every
// Resolve and reloads a fresh instance in its place.
func (p *Plugin) Poisoned() bool { return p.poisoned.Load() }

// The plugin's name is threaded through context.Context under
// pluginCapsKey so the host functions
// registered once on the runtime can resolve which plugin (and therefore
// which kv namespace) is calling them.
type pluginCapsKey struct{}

func withPluginName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, pluginCapsKey{}, name)
}

func pluginNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(pluginCapsKey{}).(string)
	return name
}

// Load compiles and instantiates the module in wasmBytes, then calls its load
// export to retrieve Metadata. name is the plugin's registry name
// (derived from filename by the caller).
func (h *Host) Load(ctx context.Context, name string, wasmBytes []byte) (*Plugin, error) {
	compiled, err := h.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile plugin %s: %w", name, err)
	}

	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStdout(newLineBufferedWriter(h.log, name, "stdout")).
		WithStderr(newLineBufferedWriter(h.log, name, "stderr")).
		WithFSConfig(wazero.NewFSConfig())
	if h.fsRoot != "" {
		cfg = cfg.WithFSConfig(wazero.NewFSConfig().WithDirMount(h.fsRoot, "/"))
	}

	mod, err := h.runtime.InstantiateModule(withPluginName(ctx, name), compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate plugin %s: %w", name, err)
	}

	abi, err := newGuestABI(mod)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", name, err)
	}

	loadFn := mod.ExportedFunction("load")
	initFn := mod.ExportedFunction("init")
	procFn := mod.ExportedFunction("process")
	if loadFn == nil || initFn == nil || procFn == nil {
		return nil, fmt.Errorf("plugin %s missing load/init/process export", name)
	}

	p := &Plugin{Name: name, host: h, mod: mod, abi: abi, loadFn: loadFn, initFn: initFn, procFn: procFn}

	out, err := abi.callJSONNoArgs(withPluginName(ctx, name), loadFn)
	if err != nil {
		return nil, fmt.Errorf("plugin %s load(): %w", name, err)
	}
	if err := json.Unmarshal(out, &p.Metadata); err != nil {
		return nil, fmt.Errorf("plugin %s load() metadata: %w", name, err)
	}
	if p.Metadata.Name == "" {
		p.Metadata.Name = name
	}
	return p, nil
}

// abiError is the tagged error envelope a guest export may return instead
// of a success payload.
type abiError struct {
	Kind    errs.PluginFailureKind `json:"kind"`
	Message string                 `json:"message"`
}

type abiEnvelope struct {
	Error   *abiError       `json:"error,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
	OK      bool            `json:"ok,omitempty"`
}

// Init calls the plugin's init export with configJSON, caching whatever
// host-side resources the plugin needs. Called once per host instance.
func (p *Plugin) Init(ctx context.Context, configJSON []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.abi.callJSON(withPluginName(ctx, p.Name), p.initFn, configJSON)
	if err != nil {
		return fmt.Errorf("plugin %s init(): %w", p.Name, err)
	}
	var env abiEnvelope
	if err := json.Unmarshal(out, &env); err != nil {
		return fmt.Errorf("plugin %s init() response: %w", p.Name, err)
	}
	if env.Error != nil {
		return &errs.PluginFailure{Kind: env.Error.Kind, Message: env.Error.Message}
	}
	return nil
}

// Process invokes the plugin's process export with payload, enforcing
// timeout. Concurrent calls against the same Plugin are serialized.
func (p *Plugin) Process(ctx context.Context, payload []byte, timeout time.Duration) ([]domain.PluginResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cctx, cancel := context.WithTimeout(withPluginName(ctx, p.Name), timeout)
	defer cancel()

	type callResult struct {
		out []byte
		err error
	}
	done := make(chan callResult, 1)
	go func() {
		out, err := p.abi.callJSON(cctx, p.procFn, payload)
		done <- callResult{out, err}
	}()

	select {
	case <-cctx.Done():
		// wazero has no mid-call abort: the goroutine above keeps running
		// against mod after we return here. Mark the instance poisoned so
		// the registry evicts and reloads it on the next Resolve instead
		// of handing out a module with an invocation still in flight.
		p.poisoned.Store(true)
		if ctx.Err() != nil {
			return nil, errs.ErrCancelled
		}
		return nil, errs.ErrTimeout
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("plugin %s process(): %w", p.Name, r.err)
		}
		var env abiEnvelope
		if err := json.Unmarshal(r.out, &env); err != nil {
			return nil, fmt.Errorf("plugin %s process() response: %w", p.Name, err)
		}
		if env.Error != nil {
			return nil, &errs.PluginFailure{Kind: env.Error.Kind, Message: env.Error.Message}
		}
		var results []domain.PluginResult
		if len(env.Results) > 0 {
			if err := json.Unmarshal(env.Results, &results); err != nil {
				return nil, fmt.Errorf("plugin %s process() results: %w", p.Name, err)
			}
		}
		return results, nil
	}
}

// Close releases the plugin's module instance.
func (p *Plugin) Close(ctx context.Context) error {
	return p.mod.Close(ctx)
}
