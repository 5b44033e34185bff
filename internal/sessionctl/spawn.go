package sessionctl

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"
)

// SpawnedServer is a `modeld serve` child process started by ConfigureSpawn,
// kept alive for the lifetime of the REPL.
type SpawnedServer struct {
	cmd  *exec.Cmd
	Addr string
}

// chooseFreePort asks the kernel for an unused TCP port, the same
// ask-the-kernel-for-:0 trick internal/testctl/ports.go used to pick a port
// for a spawned test server.
func chooseFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// waitHealthy polls addr's /healthz until it answers 200 or timeout elapses,
// generalizing internal/testctl/ports.go's waitHTTP (which polled an
// arbitrary URL for an arbitrary status) to this module's one health route.
func waitHealthy(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client := &http.Client{Timeout: 2 * time.Second}
	url := addr + "/healthz"
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s to become healthy", url)
		}
	}
}

// SpawnServer launches modeldBin as `<modeldBin> serve --model-path
// <modelPath> --addr :<freeport>` and waits for it to answer /healthz,
// generalizing internal/testctl/executil.go's Cmd/RunCmd wrapper (built for
// shelling out to go/npm/pytest test runners) to spawning this module's own
// daemon for a human running cmd/sessionctl without a server already up.
func SpawnServer(ctx context.Context, modeldBin, modelPath string, extraArgs ...string) (*SpawnedServer, error) {
	port, err := chooseFreePort()
	if err != nil {
		return nil, fmt.Errorf("spawn: choose port: %w", err)
	}
	addr := fmt.Sprintf("http://127.0.0.1:%d", port)

	args := append([]string{"serve", "--addr", fmt.Sprintf(":%d", port), "--model-path", modelPath}, extraArgs...)
	cmd := exec.CommandContext(ctx, modeldBin, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn: start %s: %w", modeldBin, err)
	}

	if err := waitHealthy(ctx, addr, 10*time.Second); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}
	return &SpawnedServer{cmd: cmd, Addr: addr}, nil
}

// Stop terminates the spawned modeld process.
func (s *SpawnedServer) Stop() error {
	if s == nil || s.cmd.Process == nil {
		return nil
	}
	return s.cmd.Process.Kill()
}
