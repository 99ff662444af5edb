package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEnvironment bundles a context and a scratch directory for a test
type TestEnvironment struct {
	t       *testing.T
	ctx     context.Context
	cancel  context.CancelFunc
	tempDir string
}

// NewTestEnvironment creates a new test environment. Everything it holds is
// released when the test completes.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	env := &TestEnvironment{
		t:       t,
		ctx:     ctx,
		cancel:  cancel,
		tempDir: t.TempDir(),
	}
	t.Cleanup(cancel)
	return env
}

// Context returns the test context
func (e *TestEnvironment) Context() context.Context {
	return e.ctx
}

// TempDir returns the temporary directory
func (e *TestEnvironment) TempDir() string {
	return e.tempDir
}

// CreateTempFile creates a file relative to the temporary directory
func (e *TestEnvironment) CreateTempFile(name string, content []byte) string {
	e.t.Helper()

	path := filepath.Join(e.tempDir, name)
	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, content, 0o644))
	return path
}

// CreateTestData writes numFiles small metadata documents into dir and
// returns their paths.
func CreateTestData(t *testing.T, dir string, numFiles int) []string {
	t.Helper()

	files := make([]string, 0, numFiles)
	for i := 0; i < numFiles; i++ {
		name := filepath.Join(dir, fmt.Sprintf("record_%d.xml", i))
		doc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><metadata><identifier>record-%d</identifier></metadata>`, i)
		require.NoError(t, os.WriteFile(name, []byte(doc), 0o644))
		files = append(files, name)
	}
	return files
}
