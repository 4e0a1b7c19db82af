package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardprep/pkg/shard"
)

func TestHardLinkSupported(t *testing.T) {
	var (
		root   = t.TempDir()
		source = filepath.Join(root, "source")
		target = filepath.Join(root, "target")
	)
	require.NoError(t, os.MkdirAll(source, 0755))
	require.NoError(t, ensureTargetDir(target))
	writeSourceShard(t, source, "train-00000-of-01024", "probe me")

	files, err := scanSourceDir(testLogger(), source, shard.SplitTrain, 1024)
	require.NoError(t, err)

	supported, err := hardLinkSupported(source, target, files)
	require.NoError(t, err)
	assert.True(t, supported)

	entries, err := os.ReadDir(target)
	require.NoError(t, err)
	assert.Empty(t, entries, "the probe link must be cleaned up")

	t.Run("no files means nothing to probe", func(t *testing.T) {
		supported, err := hardLinkSupported(source, target, nil)
		require.NoError(t, err)
		assert.True(t, supported)
	})
}
