package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/config"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe/fhetest"
)

func TestConfigCommandAppliesFlagsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fhe.toml")
	require.NoError(t, os.WriteFile(path, []byte("[http]\naddr = \":7000\"\n\n[worker]\njob_runners = 2\n"), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--config", path, "--job-runners", "9", "--nats-url", "nats://broker:4222"})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, `addr = ":7000"`)
	assert.Contains(t, text, "job_runners = 9")
	assert.Contains(t, text, `url = "nats://broker:4222"`)
	assert.Contains(t, text, "enabled = true")
}

func TestConfigCommandRejectsInvalidValues(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config", "--queue", "kafka"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.backend")
}

func TestServerLifecycle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = "127.0.0.1:0"

	srv, err := newServer(cfg, fhetest.New(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, srv.pool)
	require.NotNil(t, srv.metrics)
	assert.Nil(t, srv.listener)

	g, ctx := errgroup.WithContext(context.Background())
	require.NoError(t, srv.start(ctx, g))
	require.NoError(t, srv.pool.HealthCheck())

	require.NoError(t, srv.shutdown())
	require.NoError(t, g.Wait())
	assert.Error(t, srv.pool.HealthCheck())
}

func TestServerWithoutQueue(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Queue.Enabled = false

	srv, err := newServer(cfg, fhetest.New(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, srv.pool)
	assert.Nil(t, srv.queue)
	assert.Nil(t, srv.metrics)
	require.NoError(t, srv.shutdown())
}

func TestServerRedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Queue.Backend = config.QueueRedis
	cfg.Queue.Redis.Addr = "127.0.0.1:1"

	_, err := newServer(cfg, fhetest.New(), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create queue")
}
