package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/breki/kozmotic/internal/playback"
	"github.com/breki/kozmotic/internal/sound"
)

type stubDevice struct {
	plays  int
	volume float64
	closed bool
}

func (d *stubDevice) Play(ctx context.Context, clip *sound.Clip, limit time.Duration) (time.Duration, error) {
	d.plays++
	if limit > 0 && limit < clip.Duration {
		return limit, nil
	}
	return clip.Duration, nil
}

func (d *stubDevice) Close() error {
	d.closed = true
	return nil
}

type result struct {
	code   int
	stdout string
	stderr string
	opened int
	device *stubDevice
}

// runCLI executes args in-process with a stub audio device and an empty
// config directory
func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return runCLIWithConfig(t, args...)
}

func runCLIWithConfig(t *testing.T, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	res := result{device: &stubDevice{}}

	c := newCLI(&stdout, &stderr)
	c.opener = func(name string, volume float64) (playback.Device, error) {
		res.opened++
		res.device.volume = volume
		return res.device, nil
	}

	res.code = c.execute(context.Background(), args)
	res.stdout = stdout.String()
	res.stderr = stderr.String()
	return res
}

func decodeJSON(t *testing.T, res result) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &env), "stdout: %s", res.stdout)
	return env
}

func errorCode(t *testing.T, env map[string]any) string {
	t.Helper()
	e, ok := env["error"].(map[string]any)
	require.True(t, ok, "envelope has no error: %v", env)
	return e["code"].(string)
}

func TestPlayPreset(t *testing.T) {
	res := runCLI(t, "play", "--preset", "chime")

	assert.Equal(t, 0, res.code)
	env := decodeJSON(t, res)
	assert.Equal(t, "success", env["status"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "preset", data["source"])
	assert.Equal(t, "chime", data["preset"])
	assert.Equal(t, float64(1), data["repeats_completed"])
	meta := env["metadata"].(map[string]any)
	assert.Equal(t, "kozmotic", meta["tool_name"])
	assert.NotContains(t, meta, "dry_run")
	assert.Equal(t, 1, res.opened)
	assert.True(t, res.device.closed)
}

func TestPlayTwoSources(t *testing.T) {
	res := runCLI(t, "play", "--preset", "chime", "--tone", "440")

	assert.Equal(t, 2, res.code)
	env := decodeJSON(t, res)
	assert.Equal(t, "error", env["status"])
	assert.Equal(t, "INVALID_SOURCE_SELECTION", errorCode(t, env))
	assert.Zero(t, res.opened)
}

func TestPlayNoSource(t *testing.T) {
	res := runCLI(t, "play")

	assert.Equal(t, 2, res.code)
	assert.Equal(t, "INVALID_SOURCE_SELECTION", errorCode(t, decodeJSON(t, res)))
}

func TestPlayDryRun(t *testing.T) {
	res := runCLI(t, "play", "--tone", "440", "--dry-run", "--repeat", "3", "--interval", "100ms", "--duration", "50ms")

	assert.Equal(t, 0, res.code)
	env := decodeJSON(t, res)
	assert.Equal(t, true, env["metadata"].(map[string]any)["dry_run"])
	data := env["data"].(map[string]any)
	assert.Equal(t, float64(3), data["repeats_completed"])
	assert.Equal(t, float64(0), data["elapsed_ms"])
	assert.Equal(t, float64(350), data["estimated_ms"])
	assert.Zero(t, res.opened)
}

func TestPlayUnknownPreset(t *testing.T) {
	res := runCLI(t, "play", "--preset", "Bogus")

	assert.Equal(t, 2, res.code)
	env := decodeJSON(t, res)
	assert.Equal(t, "UNKNOWN_PRESET", errorCode(t, env))
	known := env["error"].(map[string]any)["details"].(map[string]any)["known"].([]any)
	assert.Contains(t, known, "chime")
}

func TestPlayVolume(t *testing.T) {
	for _, v := range []string{"1.0", "0.0"} {
		res := runCLI(t, "play", "--tone", "440", "--volume", v)
		assert.Equal(t, 0, res.code, "volume %s", v)
	}

	for _, v := range []string{"1.01", "-0.1"} {
		res := runCLI(t, "play", "--tone", "440", "--volume="+v)
		assert.Equal(t, 2, res.code, "volume %s", v)
		assert.Equal(t, "INVALID_VOLUME", errorCode(t, decodeJSON(t, res)))
		assert.Zero(t, res.opened)
	}
}

func TestPlayVolumePassedToDevice(t *testing.T) {
	res := runCLI(t, "play", "--tone", "440", "--volume", "0.25")
	require.Equal(t, 0, res.code)
	assert.Equal(t, 0.25, res.device.volume)
}

func TestPlayInvalidRepeat(t *testing.T) {
	res := runCLI(t, "play", "--tone", "440", "--repeat", "0")

	assert.Equal(t, 2, res.code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, decodeJSON(t, res)))
}

func TestPlayMalformedFlag(t *testing.T) {
	res := runCLI(t, "play", "--tone", "loud")

	assert.Equal(t, 2, res.code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, decodeJSON(t, res)))
}

func TestUnknownFlag(t *testing.T) {
	res := runCLI(t, "play", "--preset", "chime", "--bogus")

	assert.Equal(t, 2, res.code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, decodeJSON(t, res)))
	assert.Zero(t, res.opened)
}

func TestUnknownCommand(t *testing.T) {
	res := runCLI(t, "dance")

	assert.Equal(t, 2, res.code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, decodeJSON(t, res)))
}

func TestNoCommand(t *testing.T) {
	res := runCLI(t)

	assert.Equal(t, 2, res.code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, decodeJSON(t, res)))
}

func TestListPresets(t *testing.T) {
	for _, args := range [][]string{{"presets"}, {"play", "--list-presets"}} {
		res := runCLI(t, args...)

		assert.Equal(t, 0, res.code, "%v", args)
		data := decodeJSON(t, res)["data"].([]any)
		assert.Len(t, data, len(sound.KnownPresets()))
		first := data[0].(map[string]any)
		assert.Equal(t, "alert", first["name"])
		assert.Zero(t, res.opened)
	}
}

func TestVersion(t *testing.T) {
	for _, args := range [][]string{{"version"}, {"--version"}} {
		res := runCLI(t, args...)

		assert.Equal(t, 0, res.code)
		data := decodeJSON(t, res)["data"].(map[string]any)
		assert.Equal(t, version, data["version"])
		assert.NotEmpty(t, data["go_version"])
	}
}

func TestFormatYAML(t *testing.T) {
	res := runCLI(t, "--format", "yaml", "play", "--preset", "ding")

	require.Equal(t, 0, res.code)
	var env map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &env))
	assert.Equal(t, "success", env["status"])
}

func TestFormatTOML(t *testing.T) {
	res := runCLI(t, "play", "--preset", "nope", "--format", "toml")

	require.Equal(t, 2, res.code)
	var env map[string]any
	require.NoError(t, toml.Unmarshal([]byte(res.stdout), &env))
	assert.Equal(t, "UNKNOWN_PRESET", env["error"].(map[string]any)["code"])
}

func TestFormatHuman(t *testing.T) {
	res := runCLI(t, "-f", "human", "presets")

	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "OK\n")
	assert.Contains(t, res.stdout, "- chime")
}

func TestInvalidFormatFallsBackToJSON(t *testing.T) {
	res := runCLI(t, "--format", "xml", "presets")

	assert.Equal(t, 2, res.code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, decodeJSON(t, res)))
}

func TestConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "kozmotic"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kozmotic", "config.toml"), []byte(`
format = "json"
volume = 0.5
repeat = 2
`), 0644))

	res := runCLIWithConfig(t, "play", "--tone", "440", "--duration", "10ms")
	require.Equal(t, 0, res.code, res.stdout)
	data := decodeJSON(t, res)["data"].(map[string]any)
	assert.Equal(t, 0.5, data["volume"])
	assert.Equal(t, float64(2), data["repeats_completed"])

	// Environment beats the file, flags beat the environment
	t.Setenv("KOZMOTIC_VOLUME", "0.3")
	res = runCLIWithConfig(t, "play", "--tone", "440", "--duration", "10ms")
	assert.Equal(t, 0.3, decodeJSON(t, res)["data"].(map[string]any)["volume"])

	res = runCLIWithConfig(t, "play", "--tone", "440", "--duration", "10ms", "--volume", "0.7")
	assert.Equal(t, 0.7, decodeJSON(t, res)["data"].(map[string]any)["volume"])
}

func TestExplicitConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`repeat = 3`), 0644))

	res := runCLI(t, "--config", path, "play", "--tone", "440", "--dry-run")
	require.Equal(t, 0, res.code)
	assert.Equal(t, float64(3), decodeJSON(t, res)["data"].(map[string]any)["repeats_requested"])
}

func TestMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte(`repeat = = 3`), 0644))

	res := runCLI(t, "--config", path, "presets")
	assert.Equal(t, 2, res.code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, decodeJSON(t, res)))
}

func TestStdoutHoldsOnlyTheEnvelope(t *testing.T) {
	res := runCLI(t, "--verbose", "play", "--preset", "chime")

	require.Equal(t, 0, res.code)
	decodeJSON(t, res)
	assert.Contains(t, res.stderr, "level=DEBUG")
}

func TestDryRunFailuresBeforePlayback(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte(`repeat = = 3`), 0644))

	tests := []struct {
		name   string
		env    map[string]string
		args   []string
		code   string
		dryRun bool
	}{
		{
			name:   "env value does not parse",
			env:    map[string]string{"KOZMOTIC_REPEAT": "abc"},
			args:   []string{"play", "--preset", "chime", "--dry-run"},
			code:   "INVALID_ARGUMENT",
			dryRun: true,
		},
		{
			name:   "unknown format",
			args:   []string{"play", "--preset", "chime", "--dry-run", "--format", "xml"},
			code:   "INVALID_ARGUMENT",
			dryRun: true,
		},
		{
			name:   "malformed config file",
			args:   []string{"--config", broken, "play", "--tone", "440", "--dry-run"},
			code:   "INVALID_ARGUMENT",
			dryRun: true,
		},
		{
			name:   "malformed flag value before dry-run",
			args:   []string{"play", "--tone", "loud", "--dry-run"},
			code:   "INVALID_ARGUMENT",
			dryRun: true,
		},
		{
			name:   "unknown flag after dry-run",
			args:   []string{"play", "--dry-run", "--preset", "chime", "--bogus"},
			code:   "INVALID_ARGUMENT",
			dryRun: true,
		},
		{
			name:   "explicit dry-run=true",
			args:   []string{"-f", "xml", "play", "--preset", "chime", "--dry-run=true"},
			code:   "INVALID_ARGUMENT",
			dryRun: true,
		},
		{
			name: "dry-run=false",
			args: []string{"play", "--tone", "loud", "--dry-run=false"},
			code: "INVALID_ARGUMENT",
		},
		{
			name: "no dry-run",
			args: []string{"play", "--preset", "chime", "--format", "xml"},
			code: "INVALID_ARGUMENT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			res := runCLI(t, tt.args...)

			assert.Equal(t, 2, res.code)
			env := decodeJSON(t, res)
			assert.Equal(t, tt.code, errorCode(t, env))
			meta := env["metadata"].(map[string]any)
			if tt.dryRun {
				assert.Equal(t, true, meta["dry_run"])
			} else {
				assert.NotContains(t, meta, "dry_run")
			}
			assert.Zero(t, res.opened)
		})
	}
}

func TestDryRunToneLongerThanToneLimit(t *testing.T) {
	res := runCLI(t, "play", "--tone", "440", "--duration", "90s", "--dry-run")

	require.Equal(t, 0, res.code, res.stdout)
	data := decodeJSON(t, res)["data"].(map[string]any)
	assert.Equal(t, float64(sound.MaxToneDuration.Milliseconds()), data["clip_duration_ms"])
	assert.Equal(t, float64(90000), data["duration_cap_ms"])
}
