package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"standupbot/internal/metrics"
	logx "standupbot/pkg/logx"
)

func TestHandler(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.Submitted.Inc()
	s := New(Config{}, m.Registry, logx.Nop())
	s.started = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return s.started.Add(90 * time.Second) }
	h := s.Handler()

	tests := []struct {
		name     string
		path     string
		wantCode int
		contains string
	}{
		{name: "root", path: "/", wantCode: http.StatusOK, contains: `"status":"ok"`},
		{name: "health", path: "/health", wantCode: http.StatusOK, contains: `"timestamp":"2024-06-03T09:01:30Z"`},
		{name: "metrics", path: "/metrics", wantCode: http.StatusOK, contains: "standupbot_submissions_total 1"},
		{name: "unknown", path: "/nope", wantCode: http.StatusNotFound, contains: "not found"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.wantCode, rec.Code)
			require.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestHealthBody(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, logx.Nop())
	s.started = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return s.started.Add(1500 * time.Millisecond) }

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "ok", st.Status)
	require.InDelta(t, 1.5, st.Uptime, 0.001)

	// no gatherer, no metrics route
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s := New(Config{Addr: "127.0.0.1:0"}, nil, logx.Nop())
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), `"status":"ok"`))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
}
