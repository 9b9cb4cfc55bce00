package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}
	assert.Equal(t, 50*time.Millisecond, percentile(sorted, 50))
	assert.Equal(t, 99*time.Millisecond, percentile(sorted, 99))
	assert.Equal(t, 100*time.Millisecond, percentile(sorted, 100))
	assert.Equal(t, time.Millisecond, percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestClientDatasets(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "client_1"), 0o755))

	dirs, err := clientDatasets(root, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "client_1"), root}, dirs)

	_, err = clientDatasets(root, 0)
	assert.Error(t, err)
	_, err = clientDatasets(filepath.Join(root, "missing"), 1)
	assert.Error(t, err)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "...6789", shorten("0123456789", 7))
}
