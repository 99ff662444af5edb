package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*EngineConfig)
	}{
		{"zero concurrency", func(c *EngineConfig) { c.Processor.MaxConcurrent = 0 }},
		{"unknown policy", func(c *EngineConfig) { c.Processor.InputErrorPolicy = "retry" }},
		{"skip without bound", func(c *EngineConfig) {
			c.Processor.InputErrorPolicy = InputErrorSkip
			c.Processor.MaxInputErrors = 0
		}},
		{"bad location", func(c *EngineConfig) { c.Scheduler.Location = "Mars/Olympus" }},
		{"unknown store", func(c *EngineConfig) { c.Store.Driver = "redis" }},
		{"sample rate", func(c *EngineConfig) { c.Tracing.SampleRate = 2 }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestLoadEngine(t *testing.T) {
	path := writeFile(t, t.TempDir(), "harvester.yaml", `
processor:
  max_concurrent: 8
  input_error_policy: skip
http:
  request_timeout: 5s
store:
  driver: memory
`)
	t.Setenv("HARVESTER_PROCESSOR_MAX_INPUT_ERRORS", "2")
	t.Setenv("HARVESTER_METRICS_ADDR", ":9999")

	cfg, err := LoadEngine(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Processor.MaxConcurrent)
	assert.Equal(t, InputErrorSkip, cfg.Processor.InputErrorPolicy)
	assert.Equal(t, 2, cfg.Processor.MaxInputErrors)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
	assert.True(t, cfg.Robots.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEngineWithoutFile(t *testing.T) {
	cfg, err := LoadEngine("")
	require.NoError(t, err)
	assert.Equal(t, Default().Processor, cfg.Processor)
}

func TestLoadEngineMissingFile(t *testing.T) {
	_, err := LoadEngine(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadTaskFile(t *testing.T) {
	t.Setenv("TEST_CKAN_KEY", "secret")
	dir := t.TempDir()
	path := writeFile(t, dir, "open-data.yaml", `
task:
  source:
    type: CKAN
    label: Open data
    properties:
      hostUrl: https://catalog.example.org
      apiKey: ${TEST_CKAN_KEY}
  destinations:
    - type: FOLDER
      properties:
        rootFolder: /tmp/out
  incremental: true
triggers:
  - type: period
    properties:
      period: 1h
  - type: CRON
    active: false
    properties:
      cron: "0 3 * * *"
`)

	f, err := LoadTaskFile(path)
	require.NoError(t, err)
	assert.Equal(t, "open-data", f.Task.Name)
	assert.Equal(t, "secret", f.Task.Source.Get("apiKey"))
	assert.Equal(t, "Open data", f.Task.Source.Label)
	assert.True(t, f.Task.Incremental)
	assert.NotEqual(t, uuid.Nil, f.ID)

	again, err := LoadTaskFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.ID, again.ID, "ids are stable across loads")

	triggers := f.TriggerDefinitions()
	require.Len(t, triggers, 2)
	assert.Equal(t, "PERIOD", triggers[0].Type)
	assert.True(t, triggers[0].Active)
	assert.Equal(t, f.ID, triggers[0].TaskID)
	assert.False(t, triggers[1].Active)
	assert.NotEqual(t, triggers[0].ID, triggers[1].ID)

	stored := f.StoredTask()
	assert.Equal(t, f.ID, stored.ID)
}

func TestLoadTaskFileRejectsIncompleteTasks(t *testing.T) {
	dir := t.TempDir()
	noDest := writeFile(t, dir, "a.yaml", "task:\n  source:\n    type: CKAN\n")
	_, err := LoadTaskFile(noDest)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	noSource := writeFile(t, dir, "b.yaml", "task:\n  destinations:\n    - type: FOLDER\n")
	_, err = LoadTaskFile(noSource)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadTaskDir(t *testing.T) {
	dir := t.TempDir()
	task := "task:\n  source:\n    type: FOLDER\n  destinations:\n    - type: FOLDER\n"
	writeFile(t, dir, "b.yml", task)
	writeFile(t, dir, "a.yaml", task)
	writeFile(t, dir, "notes.txt", "ignored")

	files, err := LoadTaskDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a", files[0].Task.Name)
	assert.Equal(t, "b", files[1].Task.Name)
	assert.NotEqual(t, files[0].ID, files[1].ID)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_HOST", "example.org")
	assert.Equal(t, "url: https://example.org/x", substituteEnvVars("url: https://${TEST_HOST}/x"))
	assert.Equal(t, "a:  b", substituteEnvVars("a: ${TEST_UNSET_VARIABLE} b"))
	assert.Equal(t, "open ${brace", substituteEnvVars("open ${brace"))
}
