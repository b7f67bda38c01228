package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicy(t *testing.T) {
	_, err := NewLeasePolicy(0)
	require.ErrorIs(t, err, ErrInvalidDefaultLease)

	p, err := NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, p.Default())
}

func TestLeasePolicy_Seconds(t *testing.T) {
	p, err := NewLeasePolicy(45 * time.Second)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   time.Duration
		want int
	}{
		{"default", 0, 45},
		{"explicit", 2 * time.Minute, 120},
		{"rounds down", 1500 * time.Millisecond, 1},
		{"sub-second floor", 10 * time.Millisecond, 1},
		{"negative floor", -time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Seconds(tt.in))
		})
	}
}

func TestHeartbeatInterval(t *testing.T) {
	assert.Equal(t, 15*time.Second, HeartbeatInterval(30))
	assert.Equal(t, time.Second, HeartbeatInterval(1))
}
