package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, "job.requests", cfg.Queue.RequestStream)
	assert.Equal(t, "job.progress", cfg.Queue.ProgressStream)
	assert.Equal(t, "job.results", cfg.Queue.ResultStream)
	assert.Equal(t, "replay-jobs", cfg.Queue.ConsumerGroup)
	assert.Equal(t, "replay-worker", cfg.Queue.ConsumerName)
	assert.Equal(t, 5*time.Second, cfg.Queue.BlockTimeout)
	assert.Equal(t, "/data/replays/exports", cfg.Export.Root)
	assert.Equal(t, 20, cfg.Export.FrameRate)
	assert.Equal(t, int64(50), cfg.Export.FrameInterval())
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.SentinelAddrs)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("WORKER_ID", "worker-7")
	t.Setenv("JOB_EXPORT_PATH", "/srv/exports")
	t.Setenv("JOB_QUEUE_BLOCK_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("WORKER_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "worker-7", cfg.Queue.ConsumerName)
	assert.Equal(t, "/srv/exports", cfg.Export.Root)
	assert.Equal(t, 2*time.Second, cfg.Queue.BlockTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Log.Debug)
}

func TestLoadYAMLExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	yaml := "queue:\n  consumer_group: ${TEST_GROUP}\nexport:\n  frame_rate: 25\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("TEST_GROUP", "exports-blue")
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "exports-blue", cfg.Queue.ConsumerGroup)
	assert.Equal(t, 25, cfg.Export.FrameRate)
	assert.Equal(t, int64(40), cfg.Export.FrameInterval())
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("RENDER_FRAME_RATE", "0")

	_, err := Load()
	assert.Error(t, err)
}
