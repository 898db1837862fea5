// Package dockerfile models the container build descriptor for the
// converter and keeps the checked-in Dockerfile honest.
//
// A Descriptor captures everything the image declares: the builder and
// runtime base images, the dependency manifest and its install step, the
// source copy, the environment defaults, the exposed port and the launch
// command. Render turns it into a Dockerfile; Parse reads any Dockerfile
// back through the BuildKit parser; Lint checks the properties a deployment
// depends on (declared port, entry point, install-before-copy ordering).
package dockerfile

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/addiskers/webp/internal/model"
)

const (
	// DefaultBuilderImage compiles the binary. cgo is required by the WebP
	// encoder, so the full Debian-based Go image is used.
	DefaultBuilderImage = "golang:1.25-bookworm"

	// DefaultRuntimeImage runs the binary. It must share the builder's libc.
	DefaultRuntimeImage = "debian:bookworm-slim"

	// DefaultBinary is the executable name inside the image.
	DefaultBinary = "webp-converter"

	// DefaultPort is the listening port declared by the image.
	DefaultPort = 5008

	// DefaultHost is the bind address passed to the launch command.
	DefaultHost = "0.0.0.0"

	// builderStage names the first stage so the runtime stage can copy
	// from it.
	builderStage = "build"

	// binaryDir is where the builder stage writes the compiled binary.
	binaryDir = "/out"

	// installDir is where the runtime stage places the binary. It is on
	// PATH in every Debian image.
	installDir = "/usr/local/bin"
)

// Descriptor is the build and launch description of the container image.
// The yaml tags define the override file read by LoadDescriptor.
type Descriptor struct {
	// BuilderImage is the base image of the compile stage.
	BuilderImage string `yaml:"builderImage"`

	// RuntimeImage is the base image of the final stage.
	RuntimeImage string `yaml:"runtimeImage"`

	// Workdir is the source directory inside the builder stage.
	Workdir string `yaml:"workdir"`

	// Manifest lists the dependency manifest files copied before the
	// install step, so the install layer is cached across source edits.
	Manifest []string `yaml:"manifest"`

	// InstallCommand downloads the dependencies named by Manifest.
	InstallCommand string `yaml:"installCommand"`

	// Package is the Go package path of the main program.
	Package string `yaml:"package"`

	// Binary is the executable name.
	Binary string `yaml:"binary"`

	// Entrypoint is the launch command without bind flags, e.g.
	// ["webp-converter", "serve"].
	Entrypoint []string `yaml:"entrypoint"`

	// Host is the bind address passed to the launch command.
	Host string `yaml:"host"`

	// Port is the listening port: exported as PORT, exposed, and passed to
	// the launch command.
	Port int `yaml:"port"`

	// Env holds additional environment defaults for the runtime stage.
	// PORT and HOST are always derived from Port and Host.
	Env map[string]string `yaml:"env"`
}

// Default returns the descriptor that produces the repository's Dockerfile.
func Default() *Descriptor {
	return &Descriptor{
		BuilderImage:   DefaultBuilderImage,
		RuntimeImage:   DefaultRuntimeImage,
		Workdir:        "/src",
		Manifest:       []string{"go.mod", "go.sum"},
		InstallCommand: "go mod download",
		Package:        "./cmd/webp-converter",
		Binary:         DefaultBinary,
		Entrypoint:     []string{DefaultBinary, "serve"},
		Host:           DefaultHost,
		Port:           DefaultPort,
		Env: map[string]string{
			"LOG_FORMAT": "json",
		},
	}
}

// LoadDescriptor reads a YAML override file and applies it on top of
// Default. Keys absent from the file keep their default values; an env map
// in the file is merged into the default one.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitDescriptorInvalid,
				fmt.Sprintf("descriptor not found: %s", path), err)
		}
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	d := Default()
	defaultEnv := d.Env
	d.Env = nil
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, model.WrapCLIError(model.ExitDescriptorInvalid,
			fmt.Sprintf("failed to parse descriptor %s", path), err)
	}

	merged := make(map[string]string, len(defaultEnv)+len(d.Env))
	for k, v := range defaultEnv {
		merged[k] = v
	}
	for k, v := range d.Env {
		merged[k] = v
	}
	d.Env = merged

	if err := d.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitDescriptorInvalid,
			fmt.Sprintf("invalid descriptor %s", path), err)
	}
	return d, nil
}

// Validate checks that every field needed to render a Dockerfile is set.
func (d *Descriptor) Validate() error {
	switch {
	case d.BuilderImage == "":
		return fmt.Errorf("builderImage must not be empty")
	case d.RuntimeImage == "":
		return fmt.Errorf("runtimeImage must not be empty")
	case d.Workdir == "":
		return fmt.Errorf("workdir must not be empty")
	case len(d.Manifest) == 0:
		return fmt.Errorf("manifest must list at least one file")
	case d.InstallCommand == "":
		return fmt.Errorf("installCommand must not be empty")
	case d.Package == "":
		return fmt.Errorf("package must not be empty")
	case d.Binary == "":
		return fmt.Errorf("binary must not be empty")
	case len(d.Entrypoint) == 0:
		return fmt.Errorf("entrypoint must not be empty")
	case d.Port < 1 || d.Port > 65535:
		return fmt.Errorf("port %d out of range (1-65535)", d.Port)
	}
	for k, v := range d.Env {
		if k == "PORT" || k == "HOST" {
			return fmt.Errorf("env must not set %s; use the port and host fields", k)
		}
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("env %s must be a single line", k)
		}
	}
	return nil
}

// Command returns the full launch command: the entry point followed by the
// bind address and port flags.
//
//	["webp-converter", "serve", "--host", "0.0.0.0", "--port", "5008"]
func (d *Descriptor) Command() []string {
	cmd := make([]string, 0, len(d.Entrypoint)+4)
	cmd = append(cmd, d.Entrypoint...)
	return append(cmd, "--host", d.Host, "--port", strconv.Itoa(d.Port))
}

// EnvVar is one rendered ENV entry.
type EnvVar struct {
	Key   string
	Value string
}

// RuntimeEnv returns the runtime stage environment sorted by key, with
// HOST and PORT derived from the descriptor.
func (d *Descriptor) RuntimeEnv() []EnvVar {
	all := make(map[string]string, len(d.Env)+2)
	for k, v := range d.Env {
		all[k] = v
	}
	all["HOST"] = d.Host
	all["PORT"] = strconv.Itoa(d.Port)

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]EnvVar, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, EnvVar{Key: k, Value: all[k]})
	}
	return vars
}

// BinaryPath is where the builder stage writes the executable.
func (d *Descriptor) BinaryPath() string {
	return binaryDir + "/" + d.Binary
}

// Expectations returns the properties Lint should enforce for Dockerfiles
// generated from this descriptor.
func (d *Descriptor) Expectations() Expectations {
	return Expectations{
		Port:       d.Port,
		Entrypoint: d.Entrypoint,
		Manifest:   d.Manifest,
	}
}
