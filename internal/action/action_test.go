package action

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OctaHive/octabot/internal/errs"
	"github.com/OctaHive/octabot/internal/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New("error")
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	return log
}

func TestDispatchUnknownActionReturnsActionFailure(t *testing.T) {
	t.Parallel()
	d := &Dispatcher{log: testLogger(t), handlers: map[string]Handler{}}

	err := d.Dispatch(context.Background(), "no.such.action", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected an error for an unregistered action")
	}
	var af *errs.ActionFailure
	if !errors.As(err, &af) {
		t.Fatalf("expected *errs.ActionFailure, got %T: %v", err, err)
	}
	if af.Name != "no.such.action" {
		t.Fatalf("ActionFailure.Name = %q, want %q", af.Name, "no.such.action")
	}
	if !errors.Is(err, errs.ErrActionFailure) {
		t.Fatal("expected errors.Is(err, errs.ErrActionFailure) to hold")
	}
}

func TestDispatchWrapsHandlerError(t *testing.T) {
	t.Parallel()
	d := &Dispatcher{log: testLogger(t), handlers: map[string]Handler{}}
	d.Register("boom", func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("handler exploded")
	})

	err := d.Dispatch(context.Background(), "boom", json.RawMessage(`{}`))
	var af *errs.ActionFailure
	if !errors.As(err, &af) {
		t.Fatalf("expected *errs.ActionFailure, got %T", err)
	}
	if af.Message != "handler exploded" {
		t.Fatalf("ActionFailure.Message = %q, want %q", af.Message, "handler exploded")
	}
}

func TestHTTPRequestHandlerSendsConfiguredMethodAndBody(t *testing.T) {
	t.Parallel()
	var gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := httpRequestHandler()
	payload, _ := json.Marshal(httpActionPayload{Method: http.MethodPut, URL: srv.URL, Body: "hello"})
	if err := h(context.Background(), payload); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("method = %q, want PUT", gotMethod)
	}
	if gotBody != "hello" {
		t.Fatalf("body = %q, want %q", gotBody, "hello")
	}
}

func TestHTTPRequestHandlerErrorsOn4xxAnd5xx(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := httpRequestHandler()
	payload, _ := json.Marshal(httpActionPayload{URL: srv.URL})
	if err := h(context.Background(), payload); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestKVSetAndGetHandlers(t *testing.T) {
	t.Parallel()
	// kv.Store requires a live Redis connection for Set/Get; this test only
	// exercises the handlers' payload parsing, not their storage backend.
	setPayload, _ := json.Marshal(kvActionPayload{Plugin: "", Key: ""})
	var p kvActionPayload
	if err := json.Unmarshal(setPayload, &p); err != nil {
		t.Fatalf("unmarshal kv payload: %v", err)
	}

	badPayload := json.RawMessage(`not json`)
	h := kvSetHandler(nil)
	if err := h(context.Background(), badPayload); err == nil {
		t.Fatal("expected a parse error for malformed payload")
	}
	g := kvGetHandler(testLogger(t), nil)
	if err := g(context.Background(), badPayload); err == nil {
		t.Fatal("expected a parse error for malformed kv.get payload")
	}
}
