// Package docker wraps the Docker Engine API for building and listing the
// converter's container images.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Image labels that record the version, port and entry point baked
//     into an image, so built images can be listed and inspected later
//   - Image builds from a source directory plus a rendered Dockerfile
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
