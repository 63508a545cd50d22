package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NODE_ID", "node-a")
	for _, key := range []string{"STORE_DRIVER", "QUEUE_DRIVER", "LOCK_DRIVER", "ZK_SERVERS", "QUEUE_ROUTES"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "kairos", cfg.Service.Name)
	assert.Equal(t, "node-a", cfg.Service.NodeID)
	assert.Equal(t, "8091", cfg.Service.Port)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Scheduler.StaleAfter)
	assert.Equal(t, 8, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, QueueLog, cfg.Queue.Driver)
	assert.Equal(t, LockNone, cfg.Lock.Driver)
	assert.Empty(t, cfg.Queue.Routes)
	assert.Equal(t, []string{"localhost:2181"}, cfg.Lock.ZKServers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("STORE_DSN", "file:kairos.db")
	t.Setenv("QUEUE_DRIVER", "sqs")
	t.Setenv("SQS_URL_PREFIX", "http://localhost:4566/000000000000")
	t.Setenv("QUEUE_ROUTES", "report=reports, email = emails")
	t.Setenv("LOCK_DRIVER", "zookeeper")
	t.Setenv("ZK_SERVERS", "zk1:2181, zk2:2181")
	t.Setenv("SCHEDULER_POLL_INTERVAL", "1s")
	t.Setenv("SCHEDULER_DISPATCH_RATE", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, QueueSQS, cfg.Queue.Driver)
	assert.Equal(t, map[string]string{"report": "reports", "email": "emails"}, cfg.Queue.Routes)
	assert.Equal(t, []string{"zk1:2181", "zk2:2181"}, cfg.Lock.ZKServers)
	assert.Equal(t, time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 2.5, cfg.Scheduler.DispatchRate)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unparsable duration", env: map[string]string{"SCHEDULER_POLL_INTERVAL": "soon"}},
		{name: "unparsable int", env: map[string]string{"SCHEDULER_BATCH_SIZE": "many"}},
		{name: "zero interval", env: map[string]string{"SCHEDULER_SWEEP_INTERVAL": "0s"}},
		{name: "unknown store", env: map[string]string{"STORE_DRIVER": "mongo"}},
		{name: "sql store without dsn", env: map[string]string{"STORE_DRIVER": "postgres"}},
		{name: "unknown queue", env: map[string]string{"QUEUE_DRIVER": "kafka"}},
		{name: "sqs without prefix", env: map[string]string{"QUEUE_DRIVER": "sqs"}},
		{name: "unknown lock", env: map[string]string{"LOCK_DRIVER": "etcd"}},
		{name: "bad route", env: map[string]string{"QUEUE_ROUTES": "report"}},
		{name: "negative rate", env: map[string]string{"SCHEDULER_DISPATCH_RATE": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
