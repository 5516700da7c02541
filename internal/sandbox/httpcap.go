package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// httpCapability mediates the sandbox's outbound-HTTP import. Every
// plugin's requests share a single rate limiter so a misbehaving plugin
// cannot exhaust the host's outbound connection budget.
type httpCapability struct {
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPCapability() *httpCapability {
	return &httpCapability{
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

type httpRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type httpResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// do executes a plugin-issued HTTP request, JSON-encoded per httpRequest,
// and returns a JSON-encoded httpResponse. It never returns a Go error for
// request-level failures — those are reported inside the response
// envelope so the guest's process export can decide how to react.
func (h *httpCapability) do(ctx context.Context, reqJSON []byte) []byte {
	respond := func(r httpResponse) []byte {
		b, _ := json.Marshal(r)
		return b
	}

	var req httpRequest
	if err := json.Unmarshal(reqJSON, &req); err != nil {
		return respond(httpResponse{Error: fmt.Sprintf("parse request: %v", err)})
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return respond(httpResponse{Error: "rate limit: " + err.Error()})
	}

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return respond(httpResponse{Error: fmt.Sprintf("build request: %v", err)})
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return respond(httpResponse{Error: fmt.Sprintf("send request: %v", err)})
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return respond(httpResponse{Error: fmt.Sprintf("read response: %v", err)})
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return respond(httpResponse{Status: resp.StatusCode, Headers: headers, Body: string(bodyBytes)})
}
