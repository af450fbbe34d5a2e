package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "timeline.yaml", `
output_name: lobby
origin: filename
filename_pattern: "%Y-%m-%d_%H%M%S"
rebase: true
sink_max_buffers: 9
stop_grace: 750ms
http_addr: ":9090"
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	want := Default()
	want.OutputName = "lobby"
	want.Origin = "filename"
	want.FilenamePattern = "%Y-%m-%d_%H%M%S"
	want.Rebase = true
	want.SinkMaxBuffers = 9
	want.StopGrace = 750 * time.Millisecond
	want.HTTPAddr = ":9090"
	assert.Equal(t, want, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile_defaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = LoadFile(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "unknown.yaml", "output: main\n"))
	assert.ErrorContains(t, err, "output")

	_, err = LoadFile(writeFile(t, "bad.yaml", "sink_max_buffers: many\n"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TIMELINE_OUTPUT_NAME", "garage")
	t.Setenv("TIMELINE_REBASE", "true")
	t.Setenv("TIMELINE_SINK_MAX_BUFFERS", "12")
	t.Setenv("TIMELINE_STOP_GRACE", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TIMELINE_ORIGIN", "")

	cfg := Default()
	ApplyEnv(&cfg)

	assert.Equal(t, "garage", cfg.OutputName)
	assert.True(t, cfg.Rebase)
	assert.Equal(t, 12, cfg.SinkMaxBuffers)
	assert.Equal(t, 5*time.Second, cfg.StopGrace)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "zero", cfg.Origin, "empty variables keep the current value")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty_output", mutate: func(c *Config) { c.OutputName = "" }},
		{name: "no_buffers", mutate: func(c *Config) { c.SinkMaxBuffers = 0 }},
		{name: "negative_grace", mutate: func(c *Config) { c.StopGrace = -time.Second }},
		{name: "unknown_origin", mutate: func(c *Config) { c.Origin = "sidecar" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestGetEnv_helpers(t *testing.T) {
	t.Setenv("CFG_TEST_STRING", "x")
	t.Setenv("CFG_TEST_INT", "nope")
	t.Setenv("CFG_TEST_BOOL", "1")
	t.Setenv("CFG_TEST_DURATION", "2m")

	assert.Equal(t, "x", GetEnv("CFG_TEST_STRING", "y"))
	assert.Equal(t, "y", GetEnv("CFG_TEST_UNSET", "y"))
	assert.Equal(t, 3, GetEnvInt("CFG_TEST_INT", 3))
	assert.True(t, GetEnvBool("CFG_TEST_BOOL", false))
	assert.Equal(t, 2*time.Minute, GetEnvDuration("CFG_TEST_DURATION", 0))
}

func TestLoad_dotenv(t *testing.T) {
	path := writeFile(t, ".env", "CFG_TEST_DOTENV=from-file\n")
	t.Setenv("CFG_TEST_DOTENV", "")
	os.Unsetenv("CFG_TEST_DOTENV")

	require.NoError(t, Load(path))
	assert.Equal(t, "from-file", os.Getenv("CFG_TEST_DOTENV"))

	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.env")))
}
