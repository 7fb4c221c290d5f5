package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/femto/minion-novel/pkg/adapters/memory"
	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/runner"
	"github.com/femto/minion-novel/pkg/session"
	"github.com/femto/minion-novel/pkg/tool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	shout := tool.New("shout", "Upper-cases the message.", func(_ context.Context, args map[string]any, _ domain.State) (any, error) {
		return strings.ToUpper(args["text"].(string)), nil
	})
	echo := agent.Answer("echo")
	root, err := agent.NewNode("echo",
		agent.WithTools(shout),
		agent.WithOutputKey("last_reply"),
		agent.WithPolicy(&agent.RoutingPolicy{
			Routes: []agent.Route{{
				Name:  "shout",
				Match: agent.MustRegex(`^shout (.+)$`),
				Action: agent.Action{Tool: "shout", Args: func(_ string, g []string) map[string]any {
					return map[string]any{"text": g[1]}
				}},
			}},
			Fallback: &echo,
		}),
	)
	require.NoError(t, err)

	r := runner.New(session.NewManager(memory.NewStore()))
	require.NoError(t, r.Register("echo", root))
	return NewHandler(r, opts...)
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const sessionPath = "/apps/echo/users/u1/sessions/s1"

func TestRunTurn_JSON(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, "POST", sessionPath+"/turns", `{"input": "shout hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res runner.TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "HELLO", res.FinalText)
	assert.Len(t, res.Events, 4)
	assert.Nil(t, res.Failure)

	w = do(t, h, "GET", sessionPath, "")
	require.Equal(t, http.StatusOK, w.Code)
	var sess domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "HELLO", sess.State["last_reply"])

	w = do(t, h, "GET", "/apps/echo/users/u1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions": ["s1"]}`, w.Body.String())

	w = do(t, h, "DELETE", sessionPath, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, "GET", sessionPath, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunTurn_Errors(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown app", "/apps/nope/users/u1/sessions/s1/turns", `{"input": "hi"}`, http.StatusNotFound},
		{"bad body", sessionPath + "/turns", `{"input":`, http.StatusBadRequest},
		{"input too large", sessionPath + "/turns", `{"input": "` + strings.Repeat("a", 5000) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestRunTurn_SSE(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, "POST", sessionPath+"/turns", `{"input": "shout hey"}`, "Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	for _, want := range []string{"event: user_message", "event: tool_call", "event: tool_result", "event: answer", "event: done"} {
		assert.Contains(t, body, want)
	}
	assert.Less(t, strings.Index(body, "event: tool_call"), strings.Index(body, "event: answer"))
	assert.Contains(t, body, `"text":"HEY"`)
}

func TestRunTurn_SSEUnknownApp(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, "POST", "/apps/nope/users/u1/sessions/s1/turns", `{"input": "x"}`, "Accept", "text/event-stream")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInfoAndSpec(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, "GET", "/health", "")
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())

	w = do(t, h, "GET", "/info", "")
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "0.1.0", info["api_version"])
	assert.NotEmpty(t, info["version"])

	w = do(t, h, "GET", "/openapi.yaml", "")
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	w = do(t, h, "GET", "/apps", "")
	assert.JSONEq(t, `{"apps": ["echo"]}`, w.Body.String())

	doc, err := GetSwagger()
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/apps/{app}/users/{user}/sessions/{session}/turns"))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "minion_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := newTestHandler(t, WithMetrics(reg))
	w := do(t, h, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "minion_test_total 1")

	w = do(t, newTestHandler(t), "GET", "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListenAndServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{Addr: addr, Handler: newTestHandler(t)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ListenAndServe(ctx, srv, time.Second, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
	assert.Equal(t, http.StatusBadRequest, statusOf(domain.ErrInvalidSessionKey))
}
