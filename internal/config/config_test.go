package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addiskers/webp/internal/model"
)

// mapLookup adapts a map to the lookupFunc signature.
func mapLookup(env map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// writeFile creates a config file with the given name and contents in a
// per-test temporary directory and returns its path.
func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// TestDefault verifies the built-in values match what the container image
// declares.
func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 5008, cfg.Port)
	assert.Equal(t, "dev-secret", cfg.SecretKey)
	assert.Equal(t, int64(64*1024*1024), cfg.MaxContentLength)
	assert.Equal(t, 95, cfg.Quality)
	assert.Equal(t, "0.0.0.0:5008", cfg.Addr())
	assert.NoError(t, cfg.Validate())
}

// TestLoadFile_YAML verifies YAML files overlay only the keys they set.
func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "webp.yaml", `
port: 8080
quality: 80
logFormat: json
`)
	cfg := Default()
	require.NoError(t, loadFile(path, cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 80, cfg.Quality)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "dev-secret", cfg.SecretKey, "unset keys keep defaults")
}

// TestLoadFile_JSONC verifies comments and trailing commas are accepted.
func TestLoadFile_JSONC(t *testing.T) {
	path := writeFile(t, "webp.jsonc", `{
  // bind to loopback only
  "host": "127.0.0.1",
  /* bigger uploads */
  "maxContentLength": 1048576,
}`)
	cfg := Default()
	require.NoError(t, loadFile(path, cfg))

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, int64(1048576), cfg.MaxContentLength)
}

// TestLoadFile_Errors verifies missing, malformed and unsupported files map
// to ExitInvalidConfig.
func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
		},
		{
			name: "malformed yaml",
			path: func(t *testing.T) string { return writeFile(t, "bad.yaml", "port: [1, 2") },
		},
		{
			name: "unsupported extension",
			path: func(t *testing.T) string { return writeFile(t, "webp.toml", "port = 1") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loadFile(tt.path(t), Default())
			require.Error(t, err)

			var cliErr *model.CLIError
			require.True(t, errors.As(err, &cliErr))
			assert.Equal(t, model.ExitInvalidConfig, cliErr.Code)
		})
	}
}

// TestApplyEnv verifies environment variables override file values and
// that malformed numbers are rejected.
func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(cfg, mapLookup(map[string]string{
		EnvPort:             "9000",
		EnvSecretKey:        "s3cret",
		EnvMaxContentLength: "2048",
		EnvQuality:          "70",
		EnvHost:             "",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "s3cret", cfg.SecretKey)
	assert.Equal(t, int64(2048), cfg.MaxContentLength)
	assert.Equal(t, 70, cfg.Quality)
	assert.Equal(t, DefaultHost, cfg.Host, "empty variables are ignored")

	err = applyEnv(Default(), mapLookup(map[string]string{EnvPort: "http"}))
	assert.ErrorContains(t, err, "PORT")
}

// TestValidate verifies every problem is reported together.
func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Port = 70000
	cfg.Quality = 101
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port 70000")
	assert.Contains(t, err.Error(), "quality 101")
	assert.Contains(t, err.Error(), `logFormat "xml"`)
}

// TestLoad verifies the full layering with the real process environment.
func TestLoad(t *testing.T) {
	path := writeFile(t, "webp.yml", "port: 7000\nquality: 60\n")
	t.Setenv(EnvPort, "7100")
	t.Setenv(EnvQuality, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Port, "environment beats file")
	assert.Equal(t, 60, cfg.Quality, "file beats default")
}
