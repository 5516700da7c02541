// Package errs defines the error taxonomy shared across the engine.
// Components return these sentinels (wrapped with context via fmt.Errorf's
// %w) rather than ad-hoc string errors, so the scheduler can classify a
// failure with errors.Is/errors.As instead of inspecting messages.
package errs

import "errors"

var (
	// ErrStore marks a Task Store failure. Fatal at boot; at runtime causes
	// the scheduler to back off and retry the next tick.
	ErrStore = errors.New("store error")

	// ErrUnknownPlugin means task.kind has no registered plugin. Non-retryable.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrDuplicatePlugin is raised at boot when two plugin files resolve to
	// the same plugin name.
	ErrDuplicatePlugin = errors.New("duplicate plugin")

	// ErrTimeout means the sandbox exceeded PLUGIN_TIMEOUT_SECS. Retryable.
	ErrTimeout = errors.New("plugin timeout")

	// ErrCancelled marks cooperative cancellation. Not surfaced as a task
	// failure; the task stays in_progress and recovers via lease expiry.
	ErrCancelled = errors.New("cancelled")

	// ErrBadCron marks an invalid cron expression on a task's schedule.
	ErrBadCron = errors.New("bad cron expression")

	// ErrActionFailure marks a side-effect handler failure. Logged, never
	// propagated back to the originating task.
	ErrActionFailure = errors.New("action failure")

	// ErrConflict marks a Task Store unique-constraint violation not
	// resolvable by the idempotent-upsert rule.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a missing row on a point lookup.
	ErrNotFound = errors.New("not found")
)

// PluginFailureKind enumerates the variants a plugin can report as an
// error result. KindOther is the catch-all variant; the empty zero value
// is not one of the named kinds.
type PluginFailureKind string

const (
	KindParseBotConfig     PluginFailureKind = "parse-bot-config"
	KindParseActionPayload PluginFailureKind = "parse-action-payload"
	KindSendHTTPRequest    PluginFailureKind = "send-http-request"
	KindParseResponse      PluginFailureKind = "parse-response"
	KindOpenStorage        PluginFailureKind = "open-storage"
	KindStorageOperation   PluginFailureKind = "storage-operation"
	KindConfigLock         PluginFailureKind = "config-lock"
	KindOther              PluginFailureKind = "other"
)

// PluginFailure is the structured error a plugin invocation can fail with.
// It is retryable per the scheduler's retry policy.
type PluginFailure struct {
	Kind    PluginFailureKind
	Message string
}

func (e *PluginFailure) Error() string {
	if e.Message == "" {
		return "plugin failure: " + string(e.Kind)
	}
	return "plugin failure (" + string(e.Kind) + "): " + e.Message
}

// ActionFailure records why a dispatched action failed. It never fails the
// originating task; the scheduler only logs it.
type ActionFailure struct {
	Name    string
	Message string
}

func (e *ActionFailure) Error() string {
	return "action " + e.Name + " failed: " + e.Message
}

func (e *ActionFailure) Unwrap() error { return ErrActionFailure }
