// quadlink is the operator process: it opens the UDP link to the robot,
// serves the dashboard, and keeps the heartbeat going.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hri-lab/go-quadlink/internal/config"
	"github.com/hri-lab/go-quadlink/internal/log"
	"github.com/hri-lab/go-quadlink/pkg/control"
	"github.com/hri-lab/go-quadlink/pkg/geom"
	"github.com/hri-lab/go-quadlink/pkg/link"
	"github.com/hri-lab/go-quadlink/pkg/safety"
	"github.com/hri-lab/go-quadlink/pkg/web"
)

// heartbeatPeriod is how often the current motion parameters are
// re-sent so a lossy link converges on operator intent.
const heartbeatPeriod = 500 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Error("loading configuration", "err", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	frame, err := geom.NewFrame(geom.Position{
		X: cfg.FrameOriginX,
		Y: cfg.FrameOriginY,
		Z: cfg.FrameOriginZ,
	}, cfg.FrameScale, cfg.FrameRotationDeg)
	if err != nil {
		log.Error("building coordinate frame", "err", err)
		os.Exit(1)
	}
	validator := safety.New(cfg.MaxRadius)

	l, err := link.Open(link.Config{
		RobotAddr:   cfg.RobotAddr,
		StatusPort:  cfg.StatusPort,
		GracePeriod: cfg.GracePeriod,
		Validator:   validator,
	})
	if err != nil {
		log.Error("opening robot link", "err", err)
		os.Exit(1)
	}
	defer l.Close()

	controller := control.New(l, l, control.Params{
		Frame:     frame,
		Speed:     cfg.DefaultSpeed,
		Validator: validator,
	})

	server := web.NewServer(cfg.DashboardPort, controller)
	server.StartAsync()

	stop := make(chan struct{})
	go heartbeatLoop(controller, stop)
	go publishLoop(controller, server, cfg.UpdateInterval(), stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")

	close(stop)
	// Leave the robot stationary rather than chasing a stale command.
	if err := controller.Stop(); err != nil {
		log.Warn("final stop failed", "err", err)
	}
	server.Shutdown()
}

// heartbeatLoop re-issues the current motion parameters on a fixed
// cadence.
func heartbeatLoop(c *control.Controller, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.UpdateMotion(); err != nil {
				log.Debug("heartbeat send failed", "err", err)
			}
		case <-stop:
			return
		}
	}
}

// publishLoop forwards poses and connectivity transitions to the
// dashboard stream.
func publishLoop(c *control.Controller, s *web.Server, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wasConnected := false
	for {
		select {
		case <-ticker.C:
			connected := c.Connected()
			if connected != wasConnected {
				wasConnected = connected
				s.PublishLink(connected)
				log.Info("link state changed", "connected", connected)
			}
			if pose, ok := c.Pose(); ok {
				s.PublishPose(&pose)
			}
		case <-stop:
			return
		}
	}
}
