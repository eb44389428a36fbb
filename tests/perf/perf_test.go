//go:build perf

package perf_test

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/fleetdeck/pkg/client"
)

func TestPerfAccountCreateHTTP(t *testing.T) {
	vendorURL := startVendorStub(t)
	baseURL := startRealServer(t, vendorURL)
	c := client.New(baseURL)

	total := envInt("FLEETDECK_PERF_CREATE_TOTAL", 2000)
	concurrency := envInt("FLEETDECK_PERF_CREATE_CONCURRENCY", 10)
	minOps := envFloat("FLEETDECK_PERF_CREATE_MIN_OPS", 100.0)

	start := time.Now()
	var wg sync.WaitGroup
	var failures atomic.Int64
	var next atomic.Int64
	per := total / concurrency
	rem := total % concurrency
	for i := 0; i < concurrency; i++ {
		n := per
		if i < rem {
			n++
		}
		wg.Add(1)
		go func(count int) {
			defer wg.Done()
			for j := 0; j < count; j++ {
				seq := next.Add(1)
				_, err := c.CreateAccount(client.CreateAccountParams{
					Email:       "perf-create-" + strconv.FormatInt(seq, 10) + "@fleet.example",
					AccessToken: "perf-token",
				})
				if err != nil {
					failures.Add(1)
				}
			}
		}(n)
	}
	wg.Wait()

	if n := failures.Load(); n > 0 {
		t.Fatalf("create failures=%d", n)
	}
	elapsed := time.Since(start)
	ops := float64(total) / elapsed.Seconds()
	t.Logf("e2e account create http: total=%d concurrency=%d elapsed=%s ops/sec=%.1f", total, concurrency, elapsed.Round(time.Millisecond), ops)
	if ops < minOps {
		t.Fatalf("e2e account create perf regression: ops/sec %.1f below threshold %.1f", ops, minOps)
	}
}

func TestPerfSeatUpdateFlow(t *testing.T) {
	vendorURL := startVendorStub(t)
	baseURL := startRealServer(t, vendorURL)
	c := client.New(baseURL)

	total := envInt("FLEETDECK_PERF_SEATS_TOTAL", 2000)
	concurrency := envInt("FLEETDECK_PERF_SEATS_CONCURRENCY", 10)
	fleetSize := envInt("FLEETDECK_PERF_SEATS_FLEET", 50)
	minOps := envFloat("FLEETDECK_PERF_SEATS_MIN_OPS", 80.0)

	ids := make([]string, 0, fleetSize)
	for i := 0; i < fleetSize; i++ {
		acct, err := c.CreateAccount(client.CreateAccountParams{
			Email:       "perf-seat-" + strconv.Itoa(i) + "@fleet.example",
			AccessToken: "perf-token",
		})
		if err != nil {
			t.Fatalf("seed account %d: %v", i, err)
		}
		ids = append(ids, acct.ID)
	}

	start := time.Now()
	var wg sync.WaitGroup
	var failures atomic.Int64
	var seq atomic.Int64
	per := total / concurrency
	rem := total % concurrency
	for i := 0; i < concurrency; i++ {
		n := per
		if i < rem {
			n++
		}
		wg.Add(1)
		go func(count int) {
			defer wg.Done()
			for j := 0; j < count; j++ {
				id := ids[int(seq.Add(1))%len(ids)]
				res, err := c.UpdateSeats(id, 19, 1)
				if err != nil || !res.Success {
					failures.Add(1)
				}
			}
		}(n)
	}
	wg.Wait()

	if n := failures.Load(); n > 0 {
		t.Fatalf("seat update failures=%d", n)
	}
	elapsed := time.Since(start)
	ops := float64(total) / elapsed.Seconds()
	t.Logf("e2e seat update: total=%d fleet=%d concurrency=%d elapsed=%s ops/sec=%.1f", total, fleetSize, concurrency, elapsed.Round(time.Millisecond), ops)
	if ops < minOps {
		t.Fatalf("e2e seat update perf regression: ops/sec %.1f below threshold %.1f", ops, minOps)
	}
}

// startVendorStub serves the vendor RPC surface as instant empty 200s, so the
// measurement isolates the daemon's own path: token checks, wire encoding,
// store bookkeeping.
func startVendorStub(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// startRealServer starts the real `fleetdeck serve` command path against a
// stub vendor backend.
func startRealServer(t *testing.T, vendorURL string) string {
	t.Helper()
	root := repoRoot(t)
	httpAddr := freeAddr(t)
	dataDir := t.TempDir()

	args := []string{
		"run", "./cmd/fleetdeck", "serve",
		"--bind", httpAddr,
		"--data-dir", dataDir,
		"--vendor-base-url", vendorURL,
		"--refresher-enabled=false",
	}

	cmd := exec.Command("go", args...)
	cmd.Dir = root
	outPath := filepath.Join(dataDir, "server.log")
	logFile, err := os.Create(outPath)
	if err != nil {
		t.Fatalf("create server log: %v", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		t.Fatalf("start fleetdeck serve: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		_ = logFile.Close()
	})

	baseURL := "http://" + httpAddr
	waitForHealth(t, baseURL, 20*time.Second, outPath)
	return baseURL
}

func waitForHealth(t *testing.T, baseURL string, timeout time.Duration, logPath string) {
	t.Helper()
	httpC := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := httpC.Get(baseURL + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	logBytes, _ := os.ReadFile(logPath)
	t.Fatalf("server did not become healthy within %s; log:\n%s", timeout, strings.TrimSpace(string(logBytes)))
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	cur := wd
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(filepath.Join(cur, "go.mod")); err == nil {
			return cur
		}
		next := filepath.Dir(cur)
		if next == cur {
			break
		}
		cur = next
	}
	t.Fatalf("could not locate repo root from %s", wd)
	return ""
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen free addr: %v", err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func TestPerfHarnessUsesRealServerPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skip in -short")
	}
	root := repoRoot(t)
	if _, err := os.Stat(filepath.Join(root, "cmd", "fleetdeck", "main.go")); err != nil {
		t.Fatalf("expected cmd/fleetdeck/main.go in repo root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "cmd", "fleetdeck", "serve.go")); err != nil {
		t.Fatalf("expected cmd/fleetdeck/serve.go in repo root: %v", err)
	}
	t.Logf("perf harness repo root: %s", root)
}
