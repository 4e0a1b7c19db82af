package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shardprep/gen/dbq"
	"shardprep/pkg/shard"
)

func TestDatasetLabel(t *testing.T) {
	meta := runMeta{
		sourceDir:   "/data/exports",
		split:       shard.SplitValidation,
		totalShards: 128,
	}
	assert.Equal(t, "/data/exports|validation-of-00128", datasetLabel(meta))

	meta.totalShards = 200000
	assert.Equal(t, "/data/exports|validation-of-200000", datasetLabel(meta))

	meta.split = shard.SplitTrain
	assert.NotEqual(t, datasetLabel(meta), datasetLabel(runMeta{
		sourceDir:   "/data/exports",
		split:       shard.SplitValidation,
		totalShards: 200000,
	}))
}

func TestLogThroughputDelta(t *testing.T) {
	// Degenerate runs must not divide by zero.
	logThroughputDelta(testLogger(), dbq.Run{}, 100, 10)
	logThroughputDelta(testLogger(), dbq.Run{BytesCopied: 100, DurationMs: 10}, 100, 0)
	logThroughputDelta(testLogger(), dbq.Run{RunUuid: "prev", BytesCopied: 100, DurationMs: 10}, 300, 10)
}
