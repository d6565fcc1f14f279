package server_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/recachelabs/recache/pkg/server"
)

func testOptions(t *testing.T, journalPath string, capacity int) server.Options {
	t.Helper()
	return server.Options{
		Capacity:    capacity,
		JournalPath: journalPath,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// startServer runs s.Start in the background and waits for the listener to
// come up, failing the test if it doesn't.
func startServer(t *testing.T, s *server.Server) string {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- s.Start() }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); addr != nil {
			return addr.String()
		}
		select {
		case err := <-errc:
			t.Fatalf("server exited before listening: %v", err)
		default:
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server did not start listening in time")
	return ""
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestServer_PutGetDelete(t *testing.T) {
	s, err := server.New(":0", testOptions(t, filepath.Join(t.TempDir(), "journal.log"), 4))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer s.Stop()

	if err := s.Put("greeting", []byte("hello")); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	v, found := s.Get("greeting")
	if !found || string(v) != "hello" {
		t.Fatalf("get(greeting) = %q, %t; want hello, true", v, found)
	}
	if _, found := s.Get("missing"); found {
		t.Fatal("get(missing) found a value")
	}

	if err := s.Delete("greeting"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, found := s.Get("greeting"); found {
		t.Fatal("get(greeting) found a value after delete")
	}

	stats, length, capacity := s.Stats()
	if length != 0 || capacity != 4 {
		t.Fatalf("len, capacity = %d, %d; want 0, 4", length, capacity)
	}
	if stats.Hits != 1 || stats.Misses != 2 {
		t.Fatalf("stats = %+v; want 1 hit, 2 misses", stats)
	}
}

func TestServer_PutRejectsOversizedRecord(t *testing.T) {
	s, err := server.New(":0", testOptions(t, filepath.Join(t.TempDir(), "journal.log"), 4))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer s.Stop()

	if err := s.Put("big", make([]byte, 1<<17)); err == nil {
		t.Fatal("expected oversized put to fail")
	}
}

func TestServer_RestartRecoversCache(t *testing.T) {
	journalPath := filepath.Join(t.TempDir(), "journal.log")

	s, err := server.New("127.0.0.1:0", testOptions(t, journalPath, 2))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	startServer(t, s)

	// k1 is evicted by k3 at capacity 2; k2 and k3 should survive the restart.
	if err := s.Put("k1", []byte("v1")); err != nil {
		t.Fatalf("failed to put k1: %v", err)
	}
	if err := s.Put("k2", []byte("v2")); err != nil {
		t.Fatalf("failed to put k2: %v", err)
	}
	if err := s.Put("k3", []byte("v3")); err != nil {
		t.Fatalf("failed to put k3: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	restarted, err := server.New("127.0.0.1:0", testOptions(t, journalPath, 2))
	if err != nil {
		t.Fatalf("failed to recreate server: %v", err)
	}
	startServer(t, restarted)
	defer restarted.Stop()

	if _, found := restarted.Get("k1"); found {
		t.Fatal("k1 came back after restart despite eviction")
	}
	for key, want := range map[string]string{"k2": "v2", "k3": "v3"} {
		v, found := restarted.Get(key)
		if !found || string(v) != want {
			t.Fatalf("get(%s) after restart = %q, %t; want %q, true", key, v, found, want)
		}
	}
}

func TestClient_Integration(t *testing.T) {
	s, err := server.New("127.0.0.1:0", testOptions(t, filepath.Join(t.TempDir(), "journal.log"), 8))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	addr := startServer(t, s)
	defer s.Stop()

	client, err := server.Dial(addr)
	if err != nil {
		t.Fatalf("failed to dial server: %v", err)
	}
	defer client.Close()

	ctx := testContext(t)

	if _, err := client.Put(ctx, "lang", "go"); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	v, err := client.Get(ctx, "lang")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if v != "go" {
		t.Fatalf("get(lang) = %q, want go", v)
	}

	if _, err := client.Get(ctx, "missing"); !errors.Is(err, server.ErrKeyNotFound) {
		t.Fatalf("get(missing) error = %v, want ErrKeyNotFound", err)
	}

	if _, err := client.Delete(ctx, "lang"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := client.Get(ctx, "lang"); !errors.Is(err, server.ErrKeyNotFound) {
		t.Fatalf("get(lang) after delete error = %v, want ErrKeyNotFound", err)
	}

	statsLine, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if !strings.Contains(statsLine, "capacity=8") {
		t.Fatalf("stats line %q missing capacity", statsLine)
	}
}

// rawRequest opens a fresh connection, sends req verbatim and returns the
// server's reply.
func rawRequest(t *testing.T, addr, req string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial server: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return string(buf[:n])
}

func TestServer_WireProtocol(t *testing.T) {
	s, err := server.New("127.0.0.1:0", testOptions(t, filepath.Join(t.TempDir(), "journal.log"), 8))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	addr := startServer(t, s)
	defer s.Stop()

	tests := []struct {
		name   string
		req    string
		status string
		body   string
	}{
		{
			name:   "invalid operation",
			req:    "BOGUS\nKey: a\n\n",
			status: server.StatusError,
			body:   "invalid operation 'BOGUS'",
		},
		{
			name:   "missing operation",
			req:    "\n",
			status: server.StatusError,
			body:   "missing operation",
		},
		{
			name:   "missing key header",
			req:    "GET\n\n",
			status: server.StatusError,
			body:   "missing Key header",
		},
		{
			name:   "put without length header",
			req:    "PUT\nKey: a\n\n",
			status: server.StatusError,
			body:   "missing Length header",
		},
		{
			name:   "malformed header line",
			req:    "GET\nKey a\n\n",
			status: server.StatusError,
			body:   "invalid header format: expected a header got 'Key a'",
		},
		{
			// The length is rejected from the header alone; a body this
			// large is never read, so no allocation is made for it.
			name:   "length header beyond record limit",
			req:    "PUT\nKey: a\nLength: 2147483647\n\n",
			status: server.StatusError,
			body:   "Length header 2147483647 exceeds maximum record size of 65536 bytes",
		},
		{
			name:   "get miss",
			req:    "GET\nKey: nothere\n\n",
			status: server.StatusNotFound,
			body:   "",
		},
		{
			name:   "stats needs no key",
			req:    "STATS\n\n",
			status: server.StatusOK,
			body:   "len=0 capacity=8 hits=0 misses=1 evictions=0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := fmt.Sprintf("%s\nLength: %d\n\n%s", tt.status, len(tt.body), tt.body)
			if got := rawRequest(t, addr, tt.req); got != want {
				t.Fatalf("response = %q, want %q", got, want)
			}
		})
	}
}

// TestClient_LargeValue pins down that values larger than a single network
// read survive the round trip intact.
func TestClient_LargeValue(t *testing.T) {
	s, err := server.New("127.0.0.1:0", testOptions(t, filepath.Join(t.TempDir(), "journal.log"), 8))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	addr := startServer(t, s)
	defer s.Stop()

	client, err := server.Dial(addr)
	if err != nil {
		t.Fatalf("failed to dial server: %v", err)
	}
	defer client.Close()

	ctx := testContext(t)

	value := strings.Repeat("x", 5000)
	if _, err := client.Put(ctx, "big", value); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	got, err := client.Get(ctx, "big")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(got) != len(value) {
		t.Fatalf("get returned %d bytes, want %d", len(got), len(value))
	}
	if got != value {
		t.Fatal("large value corrupted in transit")
	}

	// A value right at the record limit must also round-trip.
	limit := strings.Repeat("y", 1<<16-len("max"))
	if _, err := client.Put(ctx, "max", limit); err != nil {
		t.Fatalf("failed to put limit-sized value: %v", err)
	}
	got, err = client.Get(ctx, "max")
	if err != nil {
		t.Fatalf("failed to get limit-sized value: %v", err)
	}
	if len(got) != len(limit) {
		t.Fatalf("get returned %d bytes, want %d", len(got), len(limit))
	}
}
