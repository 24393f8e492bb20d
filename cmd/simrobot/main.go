// simrobot is a stand-in for the real robot: it listens for command
// datagrams, runs the motion state machine, and streams status back.
// Point quadlink at it for an end-to-end loop with no hardware.
package main

import (
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hri-lab/go-quadlink/internal/config"
	"github.com/hri-lab/go-quadlink/internal/log"
	"github.com/hri-lab/go-quadlink/pkg/motion"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
	"github.com/hri-lab/go-quadlink/pkg/safety"
)

func main() {
	listen := flag.String("listen", ":12345", "UDP address to receive commands on")
	statusAddr := flag.String("status", "127.0.0.1:12346", "where to send status datagrams")
	statusRate := flag.Float64("status-rate", 10, "status messages per second")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Error("loading configuration", "err", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	laddr, err := net.ResolveUDPAddr("udp", *listen)
	if err != nil {
		log.Error("bad listen address", "addr", *listen, "err", err)
		os.Exit(1)
	}
	cmdConn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		log.Error("binding command socket", "err", err)
		os.Exit(1)
	}
	defer cmdConn.Close()

	statusConn, err := net.Dial("udp", *statusAddr)
	if err != nil {
		log.Error("dialing status socket", "err", err)
		os.Exit(1)
	}
	defer statusConn.Close()

	machine := motion.NewMachine(motion.Params{
		PathLength: cfg.PathLength,
		Speed:      cfg.DefaultSpeed,
		TurnRate:   cfg.TurnRate,
		Validator:  safety.New(cfg.MaxRadius),
	})

	log.Info("simulated robot up",
		"listen", cmdConn.LocalAddr().String(),
		"status", *statusAddr)

	stop := make(chan struct{})
	go commandLoop(cmdConn, machine, stop)
	go tickLoop(machine, cfg.UpdateInterval(), stop)
	go statusLoop(statusConn, machine, time.Duration(float64(time.Second) / *statusRate), stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")
	close(stop)
}

// commandLoop decodes and applies incoming command datagrams. Malformed
// payloads are logged and dropped; the machine never sees them.
func commandLoop(conn *net.UDPConn, m *motion.Machine, stop <-chan struct{}) {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-stop:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			log.Warn("command receive error", "err", err)
			continue
		}
		cmd, err := protocol.DecodeCommand(buf[:n])
		if err != nil {
			log.Debug("dropping malformed command", "err", err)
			continue
		}
		log.Debug("command", "id", cmd.ID, "type", cmd.Op.Type())
		m.Apply(cmd)
	}
}

// tickLoop advances the machine on the configured cadence.
func tickLoop(m *motion.Machine, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			m.Tick(now.Sub(last))
			last = now
		case <-stop:
			return
		}
	}
}

// statusLoop streams the machine's pose back to the operator.
func statusLoop(conn net.Conn, m *motion.Machine, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	battery := 100.0
	for {
		select {
		case <-ticker.C:
			pose := m.Snapshot()
			// A slow linear drain makes the dashboard's battery read-out
			// move like the real robot's.
			battery -= interval.Seconds() / 360
			if battery < 0 {
				battery = 0
			}
			b := battery
			pose.Battery = &b

			data, err := protocol.EncodeStatus(&pose)
			if err != nil {
				log.Error("encoding status", "err", err)
				continue
			}
			if _, err := conn.Write(data); err != nil {
				log.Debug("status send failed", "err", err)
			}
		case <-stop:
			return
		}
	}
}
