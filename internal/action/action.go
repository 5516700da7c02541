// Package action is the Action Dispatcher (C5): routes a plugin-emitted
// action{name, payload} result to a built-in host-side side-effect
// handler. This generalizes the original implementation's process_action,
// which re-invoked another plugin by action name; here the canonical
// handler set is a fixed registry of host functions, matching the
// distilled contract that "the canonical handler set is out of core
// scope" and actions are host-side side effects, not plugin recursion.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/OctaHive/octabot/internal/errs"
	"github.com/OctaHive/octabot/internal/kv"
	"github.com/OctaHive/octabot/internal/logging"
)

// Handler executes one named action against its JSON payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Dispatcher maps action names to handlers. Failures are logged and never
// propagate to the originating task, per §4.5.
type Dispatcher struct {
	log      *logging.Logger
	handlers map[string]Handler
}

// New builds a Dispatcher with the built-in handler set wired in:
// http.request, chat.message, kv.set, kv.get.
func New(log *logging.Logger, kvStore *kv.Store, chatWebhookURL string) *Dispatcher {
	d := &Dispatcher{log: log, handlers: map[string]Handler{}}
	d.Register("http.request", httpRequestHandler())
	d.Register("chat.message", chatMessageHandler(log, chatWebhookURL))
	d.Register("kv.set", kvSetHandler(kvStore))
	d.Register("kv.get", kvGetHandler(log, kvStore))
	return d
}

// Register installs or overrides a handler for name.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// Dispatch invokes the handler for name with payload. An unknown name or a
// handler error both return ActionFailure; the caller only logs it.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, payload json.RawMessage) error {
	h, ok := d.handlers[name]
	if !ok {
		err := &errs.ActionFailure{Name: name, Message: "no handler registered"}
		d.log.Warnw("unknown action", "name", name, "err", err)
		return err
	}
	if err := h(ctx, payload); err != nil {
		wrapped := &errs.ActionFailure{Name: name, Message: err.Error()}
		d.log.Warnw("action failed", "name", name, "err", wrapped)
		return wrapped
	}
	return nil
}

type httpActionPayload struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

func httpRequestHandler() Handler {
	client := &http.Client{Timeout: 15 * time.Second}
	return func(ctx context.Context, payload json.RawMessage) error {
		var p httpActionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("parse http.request payload: %w", err)
		}
		if p.Method == "" {
			p.Method = http.MethodPost
		}
		var body strings.Reader
		if p.Body != "" {
			body = *strings.NewReader(p.Body)
		}
		req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, &body)
		if err != nil {
			return err
		}
		for k, v := range p.Headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	}
}

type chatMessagePayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// chatMessageHandler logs the message and, when a webhook URL is
// configured, forwards it as a JSON POST. The canonical chat integration
// (Slack, Discord, ...) is out of core scope; this stub demonstrates the
// dispatch contract without committing to a specific provider.
func chatMessageHandler(log *logging.Logger, webhookURL string) Handler {
	client := &http.Client{Timeout: 10 * time.Second}
	return func(ctx context.Context, payload json.RawMessage) error {
		var p chatMessagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("parse chat.message payload: %w", err)
		}
		log.Infow("chat message", "channel", p.Channel, "text", p.Text)
		if webhookURL == "" {
			return nil
		}
		body, _ := json.Marshal(p)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, strings.NewReader(string(body)))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return nil
	}
}

type kvActionPayload struct {
	Plugin string `json:"plugin"`
	Key    string `json:"key"`
	Value  string `json:"value,omitempty"`
	TTLSec int    `json:"ttl_secs,omitempty"`
}

func kvSetHandler(store *kv.Store) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p kvActionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("parse kv.set payload: %w", err)
		}
		var ttl time.Duration
		if p.TTLSec > 0 {
			ttl = time.Duration(p.TTLSec) * time.Second
		}
		return store.Set(ctx, p.Plugin, p.Key, p.Value, ttl)
	}
}

func kvGetHandler(log *logging.Logger, store *kv.Store) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p kvActionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("parse kv.get payload: %w", err)
		}
		val, ok, err := store.Get(ctx, p.Plugin, p.Key)
		if err != nil {
			return err
		}
		log.Debugw("kv.get action", "plugin", p.Plugin, "key", p.Key, "found", ok, "value", val)
		return nil
	}
}
