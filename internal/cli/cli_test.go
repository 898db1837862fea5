// cli_test.go tests command wiring and the output helpers
// without a Docker daemon. Commands are driven through NewRootCommand with
// SetArgs/SetOut where practical.
package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addiskers/webp/internal/config"
	"github.com/addiskers/webp/internal/convert"
	"github.com/addiskers/webp/internal/dockerfile"
	"github.com/addiskers/webp/internal/model"
)

// setJSON flips the global --json flag for one test.
func setJSON(t *testing.T, on bool) {
	t.Helper()
	prev := jsonOutput
	jsonOutput = on
	t.Cleanup(func() { jsonOutput = prev })
}

// writeJPEG writes a small JPEG to dir/name and returns its path.
func writeJPEG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

// executeRoot runs the root command with args and returns stdout.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func requireExitCode(t *testing.T, err error, want model.ExitCode) {
	t.Helper()
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %v", err)
	assert.Equal(t, want, cliErr.Code)
}

// TestRootCommand_Subcommands verifies every command is registered.
func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "convert", "dockerfile", "image"} {
		assert.Contains(t, names, want)
	}

	imageCmd, _, err := root.Find([]string{"image", "list"})
	require.NoError(t, err)
	assert.Equal(t, "list", imageCmd.Name())
}

// TestPrintError covers both output formats, with and without detail.
func TestPrintError(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		setJSON(t, false)
		var buf bytes.Buffer
		printError(&buf, "no files were converted", errors.New("a.png: unsupported file type"))
		assert.Equal(t, "Error: no files were converted: a.png: unsupported file type\n", buf.String())

		buf.Reset()
		printError(&buf, "plain", nil)
		assert.Equal(t, "Error: plain\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		setJSON(t, true)
		var buf bytes.Buffer
		printError(&buf, "port 5008 is already in use", errors.New("bind"))

		var got map[string]map[string]string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "port 5008 is already in use", got["error"]["message"])
		assert.Equal(t, "bind", got["error"]["detail"])
	})
}

// TestNewLogger verifies level and formatter selection.
func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	logger, err := NewLogger(cfg, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	cfg.LogLevel = "loud"
	_, err = NewLogger(cfg, &buf)
	requireExitCode(t, err, model.ExitInvalidConfig)
}

// TestRunConvert_WritesArchive verifies the archive content and the text
// report for a batch with one skipped file.
func TestRunConvert_WritesArchive(t *testing.T) {
	setJSON(t, false)
	dir := t.TempDir()
	a := writeJPEG(t, dir, "holiday photo.jpg")
	b := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(b, []byte("text"), 0o644))
	archive := filepath.Join(dir, "out.zip")

	var out bytes.Buffer
	err := runConvert(context.Background(), &out, []string{a, b}, archive, convert.DefaultOptions())
	require.NoError(t, err)

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "holiday_photo.webp", zr.File[0].Name)

	assert.Contains(t, out.String(), "skipped: notes.txt: unsupported file type")
	assert.Contains(t, out.String(), "Converted 1 file(s). Skipped 1 issue(s).")
	assert.Contains(t, out.String(), "Wrote 1 file(s) to "+archive)
}

// TestRunConvert_JSON verifies the machine-readable report.
func TestRunConvert_JSON(t *testing.T) {
	setJSON(t, true)
	dir := t.TempDir()
	a := writeJPEG(t, dir, "a.jpeg")
	archive := filepath.Join(dir, "a.zip")

	var out bytes.Buffer
	require.NoError(t, runConvert(context.Background(), &out, []string{a}, archive, convert.DefaultOptions()))

	var report struct {
		Archive     string   `json:"archive"`
		Successes   []string `json:"successes"`
		Failures    []string `json:"failures"`
		ArchiveName string   `json:"archiveName"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, archive, report.Archive)
	assert.Equal(t, []string{"a.webp"}, report.Successes)
	assert.Empty(t, report.Failures)
	assert.True(t, strings.HasPrefix(report.ArchiveName, "webp-conversion-"))
}

// TestRunConvert_NothingConverted verifies the exit code when every file
// is rejected and that no archive is written.
func TestRunConvert_NothingConverted(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not a jpeg"), 0o644))
	archive := filepath.Join(dir, "out.zip")

	err := runConvert(context.Background(), &bytes.Buffer{}, []string{bad}, archive, convert.DefaultOptions())
	requireExitCode(t, err, model.ExitConversionFailed)
	assert.NoFileExists(t, archive)
}

// TestRunConvert_BadQuality verifies out-of-range quality is rejected.
func TestRunConvert_BadQuality(t *testing.T) {
	opts := convert.DefaultOptions()
	opts.Quality = 101
	err := runConvert(context.Background(), &bytes.Buffer{}, []string{"x.jpg"}, "", opts)
	requireExitCode(t, err, model.ExitInvalidConfig)
}

// TestDockerfileCommand_Render verifies the command prints what Render
// produces for the defaults.
func TestDockerfileCommand_Render(t *testing.T) {
	out, err := executeRoot(t, "dockerfile")
	require.NoError(t, err)

	want, err := dockerfile.RenderString(dockerfile.Default())
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

// TestDockerfileCommand_Check verifies --check against the repository
// Dockerfile and against a broken one.
func TestDockerfileCommand_Check(t *testing.T) {
	setJSON(t, false)
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	repoDockerfile := filepath.Join(filepath.Dir(filename), "..", "..", "Dockerfile")

	out, err := executeRoot(t, "dockerfile", "--check", repoDockerfile)
	require.NoError(t, err)
	assert.Contains(t, out, ": ok")

	broken := filepath.Join(t.TempDir(), "Dockerfile")
	require.NoError(t, os.WriteFile(broken, []byte(`FROM python:3.12
COPY . .
RUN pip install -r requirements.txt
EXPOSE 8000
CMD python app.py
`), 0o644))

	_, err = executeRoot(t, "dockerfile", "--check", broken)
	requireExitCode(t, err, model.ExitDescriptorInvalid)
	assert.ErrorContains(t, err, "does not EXPOSE 5008")
}

// TestDockerfileCommand_Descriptor verifies -o and --descriptor together.
func TestDockerfileCommand_Descriptor(t *testing.T) {
	dir := t.TempDir()
	desc := filepath.Join(dir, "deploy.yaml")
	require.NoError(t, os.WriteFile(desc, []byte("port: 9000\n"), 0o644))
	target := filepath.Join(dir, "Dockerfile")

	_, err := executeRoot(t, "dockerfile", "--descriptor", desc, "-o", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "EXPOSE 9000\n")
}

// TestFormatTags covers tagged and untagged images.
func TestFormatTags(t *testing.T) {
	assert.Equal(t, "<none>", FormatTags(nil))
	assert.Equal(t, "webp:1,webp:latest", FormatTags([]string{"webp:1", "webp:latest"}))
}

// TestPrintImageTable verifies columns and the empty case.
func TestPrintImageTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, printImageTable(&buf, nil, now))
	assert.Equal(t, "No webp-converter images found.\n", buf.String())

	buf.Reset()
	require.NoError(t, printImageTable(&buf, []model.ImageInfo{{
		Tags:      []string{"webp-converter:latest"},
		Version:   "1.0.0",
		Port:      5008,
		Size:      92_100_000,
		CreatedAt: now.Add(-3 * time.Hour),
	}}, now))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"TAG", "VERSION", "PORT", "SIZE", "CREATED"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"webp-converter:latest", "1.0.0", "5008", "92.1MB", "3", "hours", "ago"},
		strings.Fields(lines[1]))
}
