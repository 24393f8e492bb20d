// Package config provides the configuration surface for go-quadlink
// commands. Values come from QUADLINK_* environment variables with
// defaults suitable for a local simulated robot; anything unparseable
// fails fast before a link is opened.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Defaults match the original deployment: command channel to the robot
// on 12345, status channel back on 12346, 50Hz updates over a 15m course.
const (
	DefaultRobotAddr     = "127.0.0.1:12345"
	DefaultStatusPort    = 12346
	DefaultUpdateRateHz  = 50.0
	DefaultPathLength    = 15.0
	DefaultSpeed         = 0.5
	DefaultTurnRate      = 0.1
	DefaultFrameScale    = 1.0
	DefaultMaxRadius     = 500.0
	DefaultGracePeriod   = 5 * time.Second
	DefaultDashboardPort = "8090"
)

// Config carries everything the link, motion machine and dashboard need.
type Config struct {
	// Network
	RobotAddr   string        // command channel destination, host:port
	StatusPort  int           // local port the status channel binds
	GracePeriod time.Duration // silence before the link reads disconnected

	// Motion
	UpdateRateHz float64
	PathLength   float64
	DefaultSpeed float64
	TurnRate     float64 // heading smoothing factor per tick

	// Coordinate frame (scene units per meter, planar rotation)
	FrameOriginX     float64
	FrameOriginY     float64
	FrameOriginZ     float64
	FrameScale       float64
	FrameRotationDeg float64

	// Safety
	MaxRadius float64

	// Surfaces
	DashboardPort string
	LogLevel      string
}

// Load reads the environment and validates it. Errors here are
// construction-time configuration errors; no partial link is created.
func Load() (*Config, error) {
	cfg := &Config{
		RobotAddr:     envString("QUADLINK_ROBOT_ADDR", DefaultRobotAddr),
		DashboardPort: envString("QUADLINK_DASHBOARD_PORT", DefaultDashboardPort),
		LogLevel:      envString("QUADLINK_LOG_LEVEL", "info"),
	}

	var err error
	if cfg.StatusPort, err = envInt("QUADLINK_STATUS_PORT", DefaultStatusPort); err != nil {
		return nil, err
	}
	if cfg.UpdateRateHz, err = envFloat("QUADLINK_UPDATE_RATE_HZ", DefaultUpdateRateHz); err != nil {
		return nil, err
	}
	if cfg.PathLength, err = envFloat("QUADLINK_PATH_LENGTH", DefaultPathLength); err != nil {
		return nil, err
	}
	if cfg.DefaultSpeed, err = envFloat("QUADLINK_DEFAULT_SPEED", DefaultSpeed); err != nil {
		return nil, err
	}
	if cfg.TurnRate, err = envFloat("QUADLINK_TURN_RATE", DefaultTurnRate); err != nil {
		return nil, err
	}
	if cfg.FrameOriginX, err = envFloat("QUADLINK_FRAME_ORIGIN_X", 0); err != nil {
		return nil, err
	}
	if cfg.FrameOriginY, err = envFloat("QUADLINK_FRAME_ORIGIN_Y", 0); err != nil {
		return nil, err
	}
	if cfg.FrameOriginZ, err = envFloat("QUADLINK_FRAME_ORIGIN_Z", 0); err != nil {
		return nil, err
	}
	if cfg.FrameScale, err = envFloat("QUADLINK_FRAME_SCALE", DefaultFrameScale); err != nil {
		return nil, err
	}
	if cfg.FrameRotationDeg, err = envFloat("QUADLINK_FRAME_ROTATION_DEG", 0); err != nil {
		return nil, err
	}
	if cfg.MaxRadius, err = envFloat("QUADLINK_MAX_RADIUS", DefaultMaxRadius); err != nil {
		return nil, err
	}

	graceSec, err := envFloat("QUADLINK_GRACE_PERIOD_SEC", DefaultGracePeriod.Seconds())
	if err != nil {
		return nil, err
	}
	cfg.GracePeriod = time.Duration(graceSec * float64(time.Second))

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if _, _, err := net.SplitHostPort(c.RobotAddr); err != nil {
		return fmt.Errorf("config: invalid robot address %q: %w", c.RobotAddr, err)
	}
	if c.StatusPort <= 0 || c.StatusPort > 65535 {
		return fmt.Errorf("config: invalid status port %d", c.StatusPort)
	}
	if c.UpdateRateHz <= 0 {
		return fmt.Errorf("config: update rate must be > 0, got %v", c.UpdateRateHz)
	}
	if c.FrameScale <= 0 {
		return fmt.Errorf("config: frame scale must be > 0, got %v", c.FrameScale)
	}
	if c.PathLength <= 0 {
		return fmt.Errorf("config: path length must be > 0, got %v", c.PathLength)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("config: grace period must be > 0, got %v", c.GracePeriod)
	}
	return nil
}

// UpdateInterval converts the configured rate to a tick interval.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.UpdateRateHz)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number: %w", key, v, err)
	}
	return f, nil
}
