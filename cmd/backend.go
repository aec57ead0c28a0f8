package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/tilawa-app/tilawa/internal/config"
	"github.com/tilawa-app/tilawa/internal/core"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// ServerEnv names a running server when --server is not given.
const ServerEnv = "TILAWA_SERVER"

var errAlreadyRunning = errors.New("another tilawa process owns the download queue; start `tilawa serve` to share it")

// backend is either a local service guarded by the instance lock or a client
// for a running server.
type backend struct {
	Downloads core.DownloadService
	Content   core.ContentService

	local    *core.Service // nil when remote
	remote   *core.RemoteService
	settings *config.Settings
	lock     *flock.Flock
}

// Remote reports whether commands are forwarded to a server.
func (b *backend) Remote() bool { return b.remote != nil }

// Close shuts the service down and releases the instance lock.
func (b *backend) Close() {
	if b.Downloads != nil {
		if err := b.Downloads.Shutdown(); err != nil {
			utils.Debug("backend: shutdown: %v", err)
		}
	}
	if b.lock != nil {
		if err := b.lock.Unlock(); err != nil {
			utils.Debug("backend: unlock: %v", err)
		}
	}
}

// openBackend connects to a running server when one is configured or
// discovered, and otherwise builds the local service.
func openBackend(ctx context.Context, opts *rootOptions) (*backend, error) {
	if target := resolveServerTarget(opts); target != "" {
		baseURL, err := resolveConnectBaseURL(target)
		if err != nil {
			return nil, err
		}
		return remoteBackend(baseURL), nil
	}
	if baseURL := discoverServer(); baseURL != "" {
		utils.Debug("backend: using server at %s", baseURL)
		return remoteBackend(baseURL), nil
	}
	return localBackend(ctx)
}

func remoteBackend(baseURL string) *backend {
	r := core.NewRemoteService(baseURL)
	return &backend{Downloads: r, Content: r, remote: r}
}

func localBackend(ctx context.Context) (*backend, error) {
	lock, err := acquireInstanceLock()
	if err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings()
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("load settings: %w", err)
	}
	svc, err := core.New(ctx, settings)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &backend{Downloads: svc, Content: svc, local: svc, settings: settings, lock: lock}, nil
}

// acquireInstanceLock takes the lock that makes a process the only owner of
// the local download queue.
func acquireInstanceLock() (*flock.Flock, error) {
	lock := flock.New(config.GetLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return nil, errAlreadyRunning
	}
	return lock, nil
}

func resolveServerTarget(opts *rootOptions) string {
	if opts != nil {
		if s := strings.TrimSpace(opts.server); s != "" {
			return s
		}
	}
	return strings.TrimSpace(os.Getenv(ServerEnv))
}

// resolveConnectBaseURL accepts "host:port" or a full URL.
func resolveConnectBaseURL(target string) (string, error) {
	target = strings.TrimRight(strings.TrimSpace(target), "/")
	if target == "" {
		return "", errors.New("empty server address")
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, nil
	}
	if _, _, err := net.SplitHostPort(target); err != nil {
		return "", fmt.Errorf("invalid server address %q: want host:port or a URL", target)
	}
	return "http://" + target, nil
}

func portFilePath() string {
	return filepath.Join(config.GetAppDir(), "port")
}

// readActivePort reads the port from the port file
func readActivePort() int {
	data, err := os.ReadFile(portFilePath())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return port
}

// saveActivePort writes the active port for CLI discovery.
func saveActivePort(port int) error {
	utils.Debug("HTTP server listening on port %d", port)
	return os.WriteFile(portFilePath(), []byte(strconv.Itoa(port)), 0644)
}

func removeActivePort() {
	if err := os.Remove(portFilePath()); err != nil && !os.IsNotExist(err) {
		utils.Debug("remove port file: %v", err)
	}
}

// discoverServer returns the base URL of a healthy local server, or "".
// A port file left behind by a crashed server is ignored.
func discoverServer() string {
	port := readActivePort()
	if port <= 0 {
		return ""
	}
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		utils.Debug("backend: stale port file (%d): %v", port, err)
		return ""
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	return baseURL
}

// findAvailablePort tries ports starting from 'start' until one is available
func findAvailablePort(start int) (int, net.Listener) {
	for port := start; port < start+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

// userError turns service errors into one line for the terminal.
func userError(err error) string {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	_, body := core.Classify(err)
	return body.Message
}
