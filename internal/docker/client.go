package docker

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"

	"github.com/addiskers/webp/internal/model"
)

// defaultPingTimeout bounds the daemon health check. Docker Desktop on
// macOS can take a few seconds to answer after waking up.
const defaultPingTimeout = 5 * time.Second

// Client wraps the Docker SDK client with socket autodetection and
// CLIError-typed failures. It implements ImageAPI.
//
//	c, err := docker.Connect(ctx, log)
//	if err != nil { /* daemon down: ExitDockerNotRunning */ }
//	defer c.Close()
//	images, err := docker.ListManagedImages(ctx, c, log)
type Client struct {
	inner *client.Client
}

// NewClient connects to DOCKER_HOST when it is set, otherwise to the first
// platform socket that exists:
//   - Linux: /var/run/docker.sock
//   - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//   - Windows: npipe:////./pipe/docker_engine
//
// Returns a model.CLIError with ExitDockerNotRunning when no socket is found
// or the client cannot be created.
func NewClient() (*Client, error) {
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return newClientWithHost(host)
	}

	host, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "Docker socket not found", err)
	}
	return newClientWithHost(host)
}

// newClientWithHost creates an SDK client for host with API version
// negotiation, so older daemons keep working.
func newClientWithHost(host string) (*Client, error) {
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host), err)
	}
	return &Client{inner: c}, nil
}

// detectDockerHost returns the Docker host URI for the current platform.
// It only checks that the socket exists; Ping verifies the daemon.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{"/var/run/docker.sock"})

	case "darwin":
		candidates := []string{"/var/run/docker.sock"}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, home+"/.docker/run/docker.sock")
		}
		return detectUnixSocket(candidates)

	case "windows":
		// os.Stat does not work on named pipes, so probe with a dial.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err != nil {
			return "", fmt.Errorf("Docker named pipe not found at %s: %w", pipePath, err)
		}
		_ = conn.Close()
		return "npipe://" + pipePath, nil

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns a unix:// URI for the first path that exists.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("Docker socket not found at any of: %v (is Docker running?)", paths)
}

// Ping checks that the daemon answers within defaultPingTimeout.
//
// Returns a model.CLIError with ExitDockerNotRunning on failure.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			"Docker daemon is not responding (is Docker running?)", err)
	}
	return nil
}

// Close releases the underlying HTTP transport. It is safe to call more
// than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

var _ ImageAPI = (*Client)(nil)

// ImageBuild forwards to the SDK client, so a *Client is an ImageAPI.
func (c *Client) ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error) {
	return c.inner.ImageBuild(ctx, buildContext, options)
}

// ImageList forwards to the SDK client.
func (c *Client) ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error) {
	return c.inner.ImageList(ctx, options)
}

// Connect returns a client whose daemon has answered a ping. Image
// commands call it once and pass the result to BuildImage or
// ListManagedImages.
func Connect(ctx context.Context, log *logrus.Entry) (*Client, error) {
	c, err := NewClient()
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	log.WithField("host", c.inner.DaemonHost()).Debug("connected to Docker daemon")
	return c, nil
}
