package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "tape" }},
		{"s3 without bucket", func(c *Config) { c.Backend = BackendS3 }},
		{"leveldb without path", func(c *Config) { c.Path = "" }},
		{"zero capacity", func(c *Config) { c.QueueCapacity = 0 }},
		{"huge capacity", func(c *Config) { c.QueueCapacity = 1 << 20 }},
		{"no workers", func(c *Config) { c.EngineWorkers = 0 }},
		{"zero record", func(c *Config) { c.RecordSize = 0 }},
		{"zero wait", func(c *Config) { c.WaitTimeout = 0 }},
		{"error below warn", func(c *Config) { c.Policy.ErrorTimeouts = c.Policy.WarnTimeouts - 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	c := Default()
	c.QueueCapacity = 32
	c.Policy.NoProgress = time.Second
	c.RecordSize = 4
	q := c.QueueConfig("worker-3")
	assert.Equal(t, "worker-3", q.Owner)
	assert.Equal(t, 32, q.Capacity)
	assert.Equal(t, time.Second, q.Policy.NoProgress)
	assert.Equal(t, 4, c.ClientConfig().RecordSize)
	assert.Equal(t, c.EngineWorkers, c.EngineConfig().Workers)

	c.Backend = BackendMemory
	c.Path = ""
	assert.NoError(t, c.Validate())
}
