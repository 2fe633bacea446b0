package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mselser95/arena-settle/pkg/healthprobe"
	"go.uber.org/zap"
)

func TestOperationalEndpoints(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		ready          bool
		expectedStatus int
	}{
		{name: "health", path: "/health", expectedStatus: http.StatusOK},
		{name: "ready_when_set", path: "/ready", ready: true, expectedStatus: http.StatusOK},
		{name: "not_ready_initially", path: "/ready", expectedStatus: http.StatusServiceUnavailable},
		{name: "metrics", path: "/metrics", expectedStatus: http.StatusOK},
		{name: "unknown_route", path: "/nonexistent", expectedStatus: http.StatusNotFound},
		{name: "webhook_unmounted_without_handler", path: "/webhooks/payments", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := healthprobe.New()
			hc.SetReady(tt.ready)

			server := New(&Config{Port: "0", Logger: zap.NewNop(), HealthChecker: hc})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			server.server.Handler.ServeHTTP(w, req)

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.expectedStatus {
				t.Errorf("%s status = %d, want %d", tt.path, resp.StatusCode, tt.expectedStatus)
			}
			if tt.path == "/metrics" {
				body, err := io.ReadAll(resp.Body)
				if err != nil {
					t.Fatalf("Failed to read metrics response body: %v", err)
				}
				if len(body) == 0 {
					t.Error("Metrics endpoint returned empty body")
				}
			}
		})
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := New(&Config{
		Port:          "0", // Random available port
		Logger:        zap.NewNop(),
		HealthChecker: healthprobe.New(),
	})

	if server.server.ReadHeaderTimeout != 10*time.Second {
		t.Errorf("ReadHeaderTimeout = %v, want %v", server.server.ReadHeaderTimeout, 10*time.Second)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Errorf("Start() returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after shutdown")
	}
}
