package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultRobotAddr, cfg.RobotAddr)
	assert.Equal(t, DefaultStatusPort, cfg.StatusPort)
	assert.Equal(t, DefaultGracePeriod, cfg.GracePeriod)
	assert.Equal(t, DefaultFrameScale, cfg.FrameScale)
	assert.Equal(t, 20*time.Millisecond, cfg.UpdateInterval())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QUADLINK_ROBOT_ADDR", "192.168.123.161:9000")
	t.Setenv("QUADLINK_STATUS_PORT", "9001")
	t.Setenv("QUADLINK_UPDATE_RATE_HZ", "100")
	t.Setenv("QUADLINK_FRAME_SCALE", "2.5")
	t.Setenv("QUADLINK_GRACE_PERIOD_SEC", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "192.168.123.161:9000", cfg.RobotAddr)
	assert.Equal(t, 9001, cfg.StatusPort)
	assert.Equal(t, 10*time.Millisecond, cfg.UpdateInterval())
	assert.Equal(t, 2.5, cfg.FrameScale)
	assert.Equal(t, 2500*time.Millisecond, cfg.GracePeriod)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad address", "QUADLINK_ROBOT_ADDR", "no-port-here"},
		{"unparseable port", "QUADLINK_STATUS_PORT", "twelve"},
		{"port out of range", "QUADLINK_STATUS_PORT", "70000"},
		{"zero rate", "QUADLINK_UPDATE_RATE_HZ", "0"},
		{"zero scale", "QUADLINK_FRAME_SCALE", "0"},
		{"negative scale", "QUADLINK_FRAME_SCALE", "-1"},
		{"unparseable float", "QUADLINK_PATH_LENGTH", "far"},
		{"zero grace", "QUADLINK_GRACE_PERIOD_SEC", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
