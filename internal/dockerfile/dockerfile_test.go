package dockerfile

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addiskers/webp/internal/model"
)

// projectRoot returns the repository root by walking up from this source
// file, so tests work regardless of the runner's working directory.
func projectRoot(t *testing.T) string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed to return file info")
	return filepath.Join(filepath.Dir(filename), "..", "..")
}

// parseString parses Dockerfile text and fails the test on error.
func parseString(t *testing.T, text string) *Summary {
	t.Helper()
	s, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	return s
}

// stripLines zeroes line numbers so summaries from different sources can
// be compared structurally.
func stripLines(s *Summary) *Summary {
	for i := range s.Stages {
		for j := range s.Stages[i].Instructions {
			s.Stages[i].Instructions[j].Line = 0
		}
	}
	return s
}

// TestDefault_Command verifies the launch command names the entry point and
// binds the declared address and port.
func TestDefault_Command(t *testing.T) {
	d := Default()
	assert.Equal(t,
		[]string{"webp-converter", "serve", "--host", "0.0.0.0", "--port", "5008"},
		d.Command())
}

// TestDefault_RuntimeEnv verifies HOST and PORT are derived and sorted in.
func TestDefault_RuntimeEnv(t *testing.T) {
	assert.Equal(t, []EnvVar{
		{Key: "HOST", Value: "0.0.0.0"},
		{Key: "LOG_FORMAT", Value: "json"},
		{Key: "PORT", Value: "5008"},
	}, Default().RuntimeEnv())
}

// TestRender_Default verifies the rendered Dockerfile passes its own checks
// and declares the expected literals.
func TestRender_Default(t *testing.T) {
	text, err := RenderString(Default())
	require.NoError(t, err)

	assert.Contains(t, text, "EXPOSE 5008\n")
	assert.Contains(t, text, "ENV PORT=5008\n")
	assert.Contains(t, text, `CMD ["webp-converter", "serve", "--host", "0.0.0.0", "--port", "5008"]`)
	assert.Less(t, strings.Index(text, "RUN go mod download"), strings.Index(text, "COPY . ."),
		"dependency install must come before the source copy")

	s := parseString(t, text)
	assert.NoError(t, Lint(s, Default().Expectations()))
}

// TestRender_Invalid verifies Render refuses an incomplete descriptor.
func TestRender_Invalid(t *testing.T) {
	d := Default()
	d.Port = 0
	_, err := RenderString(d)
	assert.ErrorContains(t, err, "port 0 out of range")
}

// TestRender_EnvQuoting verifies values that are not plain words survive a
// render and parse round trip unchanged.
func TestRender_EnvQuoting(t *testing.T) {
	d := Default()
	d.Env["GREETING"] = "hello world"
	d.Env["PRICE"] = `costs $5 "today"`
	d.Env["WINPATH"] = `C:\tmp\`
	d.Env["EMPTY"] = ""

	text, err := RenderString(d)
	require.NoError(t, err)
	assert.Contains(t, text, `ENV GREETING="hello world"`+"\n")
	assert.Contains(t, text, `ENV PRICE="costs \$5 \"today\""`+"\n")
	assert.Contains(t, text, "ENV PORT=5008\n", "plain values stay unquoted")

	s := parseString(t, text)
	final, ok := s.Final()
	require.True(t, ok)

	env := final.Env()
	assert.Equal(t, "hello world", env["GREETING"])
	assert.Equal(t, `costs $5 "today"`, env["PRICE"])
	assert.Equal(t, `C:\tmp\`, env["WINPATH"])
	assert.Equal(t, "", env["EMPTY"])
	assert.NoError(t, Lint(s, d.Expectations()))
}

// TestRender_EnvMultiline verifies a value with a line break is refused.
func TestRender_EnvMultiline(t *testing.T) {
	d := Default()
	d.Env["BANNER"] = "one\ntwo"
	_, err := RenderString(d)
	assert.ErrorContains(t, err, "env BANNER must be a single line")
}

// TestLint_QuotedPort verifies a quoted ENV PORT still matches EXPOSE and
// that later ENV values see earlier ones.
func TestLint_QuotedPort(t *testing.T) {
	s := parseString(t, `FROM golang AS build
COPY go.mod go.sum ./
RUN go mod download
COPY . .
FROM debian
ENV PORT="5008" HOST='0.0.0.0'
ENV ADDR="${HOST}:$PORT" LITERAL='$PORT'
EXPOSE 5008
CMD ["webp-converter", "serve", "--port", "5008"]
`)
	final, ok := s.Final()
	require.True(t, ok)
	env := final.Env()
	assert.Equal(t, "0.0.0.0", env["HOST"])
	assert.Equal(t, "0.0.0.0:5008", env["ADDR"])
	assert.Equal(t, "$PORT", env["LITERAL"])
	assert.NoError(t, Lint(s, Default().Expectations()))
}

// TestRepositoryDockerfile verifies the checked-in Dockerfile is what the
// default descriptor renders and that it passes Lint.
func TestRepositoryDockerfile(t *testing.T) {
	f, err := os.Open(filepath.Join(projectRoot(t), "Dockerfile"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	checkedIn, err := Parse(f)
	require.NoError(t, err)
	require.NoError(t, Lint(checkedIn, Default().Expectations()))

	text, err := RenderString(Default())
	require.NoError(t, err)
	rendered := parseString(t, text)

	assert.Equal(t, stripLines(rendered), stripLines(checkedIn),
		"Dockerfile is stale; regenerate it with `webp-converter dockerfile -o Dockerfile`")
}

// TestParse_Stages verifies stage grouping, flags, exec form and ENV
// normalization.
func TestParse_Stages(t *testing.T) {
	s := parseString(t, `ARG GO_VERSION=1.25
FROM golang:${GO_VERSION} AS build
RUN echo hi
FROM debian:bookworm-slim
ENV A=1 B=2
ENV C 3
COPY --from=build /out/app /app
EXPOSE 8080/tcp 9090
CMD ["/app", "serve"]
`)

	require.Len(t, s.Stages, 2)
	assert.Equal(t, "build", s.Stages[0].Name)
	assert.Equal(t, "golang:${GO_VERSION}", s.Stages[0].Image)

	final, ok := s.Final()
	require.True(t, ok)
	assert.Equal(t, "debian:bookworm-slim", final.Image)
	assert.Equal(t, map[string]string{"A": "1", "B": "2", "C": "3"}, final.Env())

	ports, err := final.ExposedPorts()
	require.NoError(t, err)
	assert.Equal(t, []int{8080, 9090}, ports)

	cmd, ok := final.Cmd()
	require.True(t, ok)
	assert.True(t, cmd.JSON)
	assert.Equal(t, []string{"/app", "serve"}, cmd.Args)
	assert.Equal(t, 9, cmd.Line)

	cp := final.Instructions[2]
	assert.Equal(t, "copy", cp.Command)
	assert.Equal(t, []string{"--from=build"}, cp.Flags)
}

// TestParse_MalformedFrom verifies a FROM with stray words is rejected.
func TestParse_MalformedFrom(t *testing.T) {
	_, err := Parse(strings.NewReader("FROM a b\n"))
	assert.ErrorContains(t, err, "malformed FROM")
}

// TestLint_Violations checks each rule against a Dockerfile that breaks it.
func TestLint_Violations(t *testing.T) {
	want := Default().Expectations()

	tests := []struct {
		name       string
		dockerfile string
		problem    string
	}{
		{
			name:       "no stages",
			dockerfile: "ARG ONLY_ARGS=1\n",
			problem:    "no FROM instruction",
		},
		{
			name: "wrong exposed port",
			dockerfile: `FROM golang AS build
COPY go.mod go.sum ./
RUN go mod download
COPY . .
FROM debian
ENV PORT=5008
EXPOSE 8080
CMD ["webp-converter", "serve", "--port", "5008"]
`,
			problem: "does not EXPOSE 5008",
		},
		{
			name: "env port mismatch",
			dockerfile: `FROM golang AS build
COPY go.mod go.sum ./
RUN go mod download
COPY . .
FROM debian
ENV PORT=80
EXPOSE 5008
CMD ["webp-converter", "serve"]
`,
			problem: "ENV PORT=80 does not match",
		},
		{
			name: "shell form cmd",
			dockerfile: `FROM golang AS build
COPY go.mod go.sum ./
RUN go mod download
COPY . .
FROM debian
ENV PORT=5008
EXPOSE 5008
CMD webp-converter serve
`,
			problem: "exec form",
		},
		{
			name: "wrong entry point",
			dockerfile: `FROM golang AS build
COPY go.mod go.sum ./
RUN go mod download
COPY . .
FROM debian
ENV PORT=5008
EXPOSE 5008
CMD ["python", "app.py"]
`,
			problem: "does not start with entry point",
		},
		{
			name: "cmd binds other port",
			dockerfile: `FROM golang AS build
COPY go.mod go.sum ./
RUN go mod download
COPY . .
FROM debian
ENV PORT=5008
EXPOSE 5008
CMD ["webp-converter", "serve", "--port", "9999"]
`,
			problem: "CMD binds port 9999",
		},
		{
			name: "source copied first",
			dockerfile: `FROM golang AS build
COPY . .
RUN go mod download
FROM debian
ENV PORT=5008
EXPOSE 5008
CMD ["webp-converter", "serve"]
`,
			problem: "source is copied before the dependency manifest",
		},
		{
			name: "manifest copied but not installed",
			dockerfile: `FROM golang AS build
COPY go.mod go.sum ./
COPY . .
RUN go mod download
FROM debian
ENV PORT=5008
EXPOSE 5008
CMD ["webp-converter", "serve"]
`,
			problem: "dependencies are not installed before the source copy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Lint(parseString(t, tt.dockerfile), want)
			require.Error(t, err)

			var lintErr *LintError
			require.True(t, errors.As(err, &lintErr))
			assert.Contains(t, lintErr.Error(), tt.problem)
		})
	}
}

// TestLoadDescriptor verifies YAML overrides merge onto the defaults.
func TestLoadDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descriptor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 8080
runtimeImage: gcr.io/distroless/base-debian12
env:
  LOG_LEVEL: debug
`), 0o644))

	d, err := LoadDescriptor(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, d.Port)
	assert.Equal(t, "gcr.io/distroless/base-debian12", d.RuntimeImage)
	assert.Equal(t, DefaultBuilderImage, d.BuilderImage, "unset keys keep defaults")
	assert.Equal(t, map[string]string{"LOG_FORMAT": "json", "LOG_LEVEL": "debug"}, d.Env)

	text, err := RenderString(d)
	require.NoError(t, err)
	assert.NoError(t, Lint(parseString(t, text), d.Expectations()))
}

// TestLoadDescriptor_Invalid verifies bad files map to ExitDescriptorInvalid.
func TestLoadDescriptor_Invalid(t *testing.T) {
	dir := t.TempDir()
	reserved := filepath.Join(dir, "reserved.yaml")
	require.NoError(t, os.WriteFile(reserved, []byte("env:\n  PORT: \"1\"\n"), 0o644))

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), reserved} {
		_, err := LoadDescriptor(path)
		require.Error(t, err)

		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr), "path %s", path)
		assert.Equal(t, model.ExitDescriptorInvalid, cliErr.Code)
	}
}
