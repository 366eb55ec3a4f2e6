package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vikashloomba/mcp-dashboard-go/internal/mcptest"
	"github.com/vikashloomba/mcp-dashboard-go/pkg/invoke"
	"github.com/vikashloomba/mcp-dashboard-go/pkg/mcpmgr"
)

type apiResponse struct {
	Success       bool            `json:"success"`
	Data          json.RawMessage `json:"data"`
	Error         string          `json:"error"`
	ExecutionTime *float64        `json:"execution_time"`
}

func newTestServer(t *testing.T, opts *Options) *httptest.Server {
	t.Helper()
	backend := mcptest.NewBackend("learning")
	reg, err := mcpmgr.NewRegistry(mcpmgr.ServerConfig{ID: "learning", Transport: mcpmgr.TransportSubprocess, Command: "node"})
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	m := mcpmgr.NewManager(reg, &mcpmgr.ManagerOptions{
		Logger: logger,
		Transport: func(ctx context.Context, _ mcpmgr.ServerConfig) (mcp.Transport, error) {
			return backend.Connect(ctx)
		},
	})
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	if opts == nil {
		opts = &Options{}
	}
	opts.Logger = logger
	srv := httptest.NewServer(New(invoke.NewInvoker(m, &invoke.Options{Logger: logger}), m, opts))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestListServers(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	status, out := call(t, srv, http.MethodGet, "/api/mcp", "")
	assert.Equal(t, http.StatusOK, status)
	require.True(t, out.Success)
	var servers []mcpmgr.ServerSummary
	require.NoError(t, json.Unmarshal(out.Data, &servers))
	require.Len(t, servers, 1)
	assert.Equal(t, "learning", servers[0].ID)
	assert.Equal(t, mcpmgr.StateAbsent, servers[0].State)
}

func TestQueryRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	status, out := call(t, srv, http.MethodGet, "/api/mcp/learning?action=status", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"healthy"`, string(mustField(t, out.Data, "status")))
	require.NotNil(t, out.ExecutionTime)

	status, out = call(t, srv, http.MethodGet, "/api/mcp/learning?action=tools", "")
	assert.Equal(t, http.StatusOK, status)
	var tools []invoke.Descriptor
	require.NoError(t, json.Unmarshal(out.Data, &tools))
	assert.Len(t, tools, 3)

	status, out = call(t, srv, http.MethodGet, "/api/mcp/learning?action=prompts", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(out.Data), "greet")

	status, out = call(t, srv, http.MethodGet, "/api/mcp/learning", "")
	assert.Equal(t, http.StatusOK, status, "status is the default action")

	status, out = call(t, srv, http.MethodGet, "/api/mcp/learning?action=call-tool", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, out.Success)
}

func TestUnknownServer(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	status, out := call(t, srv, http.MethodGet, "/api/mcp/ghost?action=tools", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "ghost")
	assert.Nil(t, out.Data)
}

func TestCallToolRoute(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	status, out := call(t, srv, http.MethodPost, "/api/mcp/learning?action=call-tool",
		`{"toolName":"echo","arguments":{"n":42}}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"n":42}`, string(out.Data))

	status, out = call(t, srv, http.MethodPost, "/api/mcp/learning?action=call-tool",
		`{"toolName":"fail","arguments":{"message":"quota exceeded"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "quota exceeded", out.Error)

	status, out = call(t, srv, http.MethodPost, "/api/mcp/learning", `{"promptName":"greet","arguments":{"name":"Lin"}}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(out.Data), "Hello, Lin!")
}

func TestMalformedRequests(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	status, out := call(t, srv, http.MethodPost, "/api/mcp/learning?action=call-tool", `{"toolName":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, out.Success)

	status, _ = call(t, srv, http.MethodPost, "/api/mcp/learning?action=call-tool", `{"arguments":{}}`)
	assert.Equal(t, http.StatusBadRequest, status, "tool name is required")

	status, _ = call(t, srv, http.MethodPost, "/api/mcp/learning?action=delete", `{}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestActionRoute(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &Options{Actions: Actions{
		"learning": {"generate-quiz": {Tool: "echo", Defaults: map[string]any{"difficulty": "medium", "count": 5}}},
	}})

	status, out := call(t, srv, http.MethodPost, "/api/mcp/learning/actions/generate-quiz", `{"arguments":{"count":3}}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"difficulty":"medium","count":3}`, string(out.Data))

	status, out = call(t, srv, http.MethodPost, "/api/mcp/learning/actions/generate-quiz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"difficulty":"medium","count":5}`, string(out.Data))

	status, out = call(t, srv, http.MethodPost, "/api/mcp/learning/actions/grade", `{}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, out.Error, "unknown action")
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &Options{AllowedOrigins: []string{"http://dashboard.local"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/mcp/learning", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagates(t *testing.T) {
	t.Parallel()

	var seen string
	inv := invokerFunc(func(_ context.Context, req invoke.Request) invoke.Envelope {
		seen = req.ID
		return invoke.Succeed("ok", 0)
	})
	srv := httptest.NewServer(New(inv, snapshotFunc(nil), nil))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/mcp/x?action=status", nil)
	req.Header.Set(requestIDHeader, "req-123")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get(requestIDHeader))
	assert.Equal(t, "req-123", seen)
}

func TestPanicRecovery(t *testing.T) {
	t.Parallel()

	inv := invokerFunc(func(context.Context, invoke.Request) invoke.Envelope { panic("boom") })
	srv := httptest.NewServer(New(inv, snapshotFunc(nil), &Options{Logger: zaptest.NewLogger(t)}))
	defer srv.Close()

	status, out := call(t, srv, http.MethodGet, "/api/mcp/x?action=status", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  invoke.Envelope
		want int
	}{
		{invoke.Succeed(nil, 0), http.StatusOK},
		{invoke.Fail(invoke.ErrInvalidRequest, 0), http.StatusBadRequest},
		{invoke.Fail(ErrUnknownAction, 0), http.StatusNotFound},
		{invoke.Fail(mcpmgr.ErrConfigNotFound, 0), http.StatusNotFound},
		{invoke.Fail(&mcpmgr.ConnectionError{ServerID: "a", Err: errors.New("spawn")}, 0), http.StatusBadGateway},
		{invoke.Fail(&mcpmgr.TransportBrokenError{ServerID: "a", Err: errors.New("EOF")}, 0), http.StatusServiceUnavailable},
		{invoke.Fail(&mcpmgr.RemoteError{Message: "bad"}, 0), http.StatusUnprocessableEntity},
		{invoke.Fail(context.DeadlineExceeded, 0), http.StatusGatewayTimeout},
		{invoke.Fail(errors.New("other"), 0), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StatusFor(tc.env), tc.env.Error)
	}
}

func TestMountedHandlerSharesMiddleware(t *testing.T) {
	t.Parallel()

	s := New(invokerFunc(nil), snapshotFunc(nil), nil)
	s.Handle("/mcp", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

type invokerFunc func(context.Context, invoke.Request) invoke.Envelope

func (f invokerFunc) Do(ctx context.Context, req invoke.Request) invoke.Envelope { return f(ctx, req) }

type snapshotFunc []mcpmgr.ServerSummary

func (s snapshotFunc) Snapshot() []mcpmgr.ServerSummary { return s }

func mustField(t *testing.T, raw json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[key]
}
