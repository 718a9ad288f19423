package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Valid())
}

func TestValidRejectsBadCombinations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
	}{
		{"zero hasher capacity", func(c *Config) { c.EventHasherUnhandledCapacity = 0 }},
		{"zero orphan capacity", func(c *Config) { c.OrphanBufferCapacity = 0 }},
		{"zero future buffer capacity", func(c *Config) { c.FutureEventBufferCapacity = 0 }},
		{"zero coin freq", func(c *Config) { c.ConsensusCoinFreq = 0 }},
		{"zero segment span", func(c *Config) { c.PCESMaxSegmentSpan = 0 }},
		{"zero retry attempts", func(c *Config) { c.PCESWriteRetryAttempts = 0 }},
		{"zero max tx payload", func(c *Config) { c.MaxTransactionPayloadBytes = 0 }},
		{"negative pool constant", func(c *Config) { c.DefaultPoolConstant = -1 }},
		{"zero stage queue capacity", func(c *Config) { c.StageQueueCapacity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			require.Error(t, c.Valid())
		})
	}
}

func TestPoolSize(t *testing.T) {
	c := Default()
	c.DefaultPoolMultiplier = 1.0
	c.DefaultPoolConstant = 2

	require.Equal(t, 10, c.PoolSize(8))
	require.Equal(t, 3, c.PoolSize(1))

	c.DefaultPoolMultiplier = 0
	c.DefaultPoolConstant = 0
	require.Equal(t, 1, c.PoolSize(4), "PoolSize must never return less than one worker")
}
