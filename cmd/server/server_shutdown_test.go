package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"example.com/ribbit/internal/auth"
	appkafka "example.com/ribbit/internal/broker"
	"example.com/ribbit/internal/cache"
	"example.com/ribbit/internal/service"
	"example.com/ribbit/internal/store"
	"github.com/gin-gonic/gin"
)

// freeAddr reserves a local port and releases it for the server under test.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// TestServer_GracefulShutdown verifies that Run serves requests and returns
// cleanly once its context is canceled, leaving store and Kafka closable.
func TestServer_GracefulShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockStore := store.NewMock()
	mockKafka := &appkafka.MockKafka{}
	c := cache.NewMemory()
	svc := service.New(mockStore, auth.NewJWTManager("test-secret", time.Hour), c, mockKafka, time.Minute)

	opts := Options{Addr: freeAddr(t)}
	s := New(svc, mockStore, c, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, s, opts)
	}()

	// Wait for the listener to come up
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + opts.Addr + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never became ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		mockStore.Close()
		if err := mockKafka.Close(); err != nil {
			t.Fatalf("Kafka close error: %v", err)
		}
		if err := c.Close(); err != nil {
			t.Fatalf("cache close error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shutdown gracefully within the expected time")
	}
}

// TestServer_RunFailsOnBusyPort verifies that a listener error is returned
// instead of blocking until shutdown.
func TestServer_RunFailsOnBusyPort(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	mockStore := store.NewMock()
	c := cache.NewMemory()
	svc := service.New(mockStore, auth.NewJWTManager("test-secret", time.Hour), c, nil, time.Minute)
	opts := Options{Addr: l.Addr().String()}

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), New(svc, mockStore, c, opts), opts)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error for a port already in use")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on listen failure")
	}
}
