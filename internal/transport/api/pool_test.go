package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/steg2011/netvault/internal/models"
	"github.com/steg2011/netvault/internal/transport"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"github.com/steg2011/netvault/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic(err)
	}
	m.Run()
}

func deviceAddr(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "https://")
}

func panosTarget(srv *httptest.Server) transport.Target {
	return transport.Target{
		DeviceID: uuid.New(),
		Hostname: "fw-1",
		Address:  deviceAddr(srv),
		Platform: models.PlatformPanOS,
		Username: "admin",
		Password: "secret",
	}
}

func TestPanOSExportHappyPath(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("type") {
		case "keygen":
			require.Equal(t, "admin", r.URL.Query().Get("user"))
			_, _ = w.Write([]byte(`<response status="success"><result><key>LUFRPT</key></result></response>`))
		case "export":
			require.Equal(t, "LUFRPT", r.URL.Query().Get("key"))
			require.Equal(t, "configuration", r.URL.Query().Get("category"))
			_, _ = w.Write([]byte("<config><serial>PA-123</serial></config>"))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	pool := NewPool(2, time.Second, false)
	outcomes := drain(pool.Run(context.Background(), []transport.Target{panosTarget(srv)}))
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.Contains(t, outcomes[0].Config, "PA-123")
}

func TestPanOSKeygenForbiddenIsAuthRejected(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	pool := NewPool(2, time.Second, false)
	outcomes := drain(pool.Run(context.Background(), []transport.Target{panosTarget(srv)}))
	require.Len(t, outcomes, 1)
	require.True(t, appErr.IsCode(outcomes[0].Err, appErr.CodeAuthRejected))
}

func TestPanOSMissingKeyIsAuthRejected(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<response status="error"><result></result></response>`))
	}))
	defer srv.Close()

	pool := NewPool(2, time.Second, false)
	outcomes := drain(pool.Run(context.Background(), []transport.Target{panosTarget(srv)}))
	require.True(t, appErr.IsCode(outcomes[0].Err, appErr.CodeAuthRejected))
}

func TestPanOSMalformedXMLIsProtocolError(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not xml <"))
	}))
	defer srv.Close()

	pool := NewPool(2, time.Second, false)
	outcomes := drain(pool.Run(context.Background(), []transport.Target{panosTarget(srv)}))
	require.True(t, appErr.IsCode(outcomes[0].Err, appErr.CodeProtocol))
}

func TestFortiOSExportWithBodyToken(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			require.Equal(t, "admin", body["username"])
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "abc123"})
		case "/api/v2/monitor/system/config/backup":
			require.Equal(t, "Bearer abc123", r.Header.Get("Authorization"))
			require.Equal(t, "global", r.URL.Query().Get("scope"))
			_, _ = w.Write([]byte("config system global\nend\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	target := transport.Target{
		DeviceID: uuid.New(),
		Hostname: "fg-1",
		Address:  deviceAddr(srv),
		Platform: models.PlatformFortiOS,
		Username: "admin",
		Password: "secret",
	}
	pool := NewPool(2, time.Second, false)
	outcomes := drain(pool.Run(context.Background(), []transport.Target{target}))
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.Contains(t, outcomes[0].Config, "config system global")
}

func TestFortiOSLoginRejected(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	target := transport.Target{
		DeviceID: uuid.New(),
		Hostname: "fg-1",
		Address:  deviceAddr(srv),
		Platform: models.PlatformFortiOS,
	}
	pool := NewPool(2, time.Second, false)
	outcomes := drain(pool.Run(context.Background(), []transport.Target{target}))
	require.True(t, appErr.IsCode(outcomes[0].Err, appErr.CodeAuthRejected))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var inflight, peak int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "abc"})
	}))
	defer srv.Close()

	targets := make([]transport.Target, 12)
	for i := range targets {
		targets[i] = transport.Target{
			DeviceID: uuid.New(),
			Hostname: "fg",
			Address:  deviceAddr(srv),
			Platform: models.PlatformFortiOS,
		}
	}
	pool := NewPool(3, time.Second, false)
	drain(pool.Run(context.Background(), targets))

	// Each export issues two requests; in-flight requests still cannot
	// exceed 2x the device budget, and devices themselves are capped at 3.
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(6))
}

func TestPoolCancelSkipsWaiters(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(5 * time.Second)
	}))
	defer srv.Close()

	targets := make([]transport.Target, 10)
	for i := range targets {
		targets[i] = transport.Target{
			DeviceID: uuid.New(),
			Hostname: "fg",
			Address:  deviceAddr(srv),
			Platform: models.PlatformFortiOS,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(2, 10*time.Second, false)
	ch := pool.Run(ctx, targets)

	<-started
	cancel()

	outcomes := drain(ch)
	require.Len(t, outcomes, 10)
	var skipped int
	for _, o := range outcomes {
		if o.Skipped {
			skipped++
		} else {
			require.Error(t, o.Err)
		}
	}
	require.Greater(t, skipped, 0)
}

func drain(ch <-chan transport.Outcome) []transport.Outcome {
	var out []transport.Outcome
	for o := range ch {
		out = append(out, o)
	}
	return out
}
