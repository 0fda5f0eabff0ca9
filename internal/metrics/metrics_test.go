package metrics

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// lockedBuffer lets the server goroutine and the test share log output.
type lockedBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func TestServeLogsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var buf lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	srv := Serve(ln.Addr().String(), logger)
	defer srv.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), "metrics server failed") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("bind failure was not logged")
}

func TestServeShutdownIsQuiet(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	srv := Serve("127.0.0.1:0", logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		t.Fatalf("shutdown: %v", err)
	}

	// Give the serve goroutine a moment to observe ErrServerClosed.
	time.Sleep(50 * time.Millisecond)
	if strings.Contains(buf.String(), "metrics server failed") {
		t.Fatalf("clean shutdown was logged as a failure: %s", buf.String())
	}
}
