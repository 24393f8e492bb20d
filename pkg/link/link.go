// Package link owns the UDP transport to the robot: a connected command
// socket, a listening status socket, and the receive loop that keeps the
// shared State current. Datagrams are fire-and-forget in both directions;
// nothing here retries or acknowledges.
package link

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hri-lab/go-quadlink/internal/log"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
	"github.com/hri-lab/go-quadlink/pkg/safety"
)

var (
	// ErrSend wraps transient datagram send failures. Callers may keep
	// issuing commands; the next send stands on its own.
	ErrSend = errors.New("link: send failed")

	// ErrClosed is returned by Send after Close has begun.
	ErrClosed = errors.New("link: closed")
)

const (
	defaultReadTimeout = 50 * time.Millisecond
	defaultCloseGrace  = 250 * time.Millisecond
	maxDatagram        = 64 * 1024
)

// Config carries the transport parameters for a Link.
type Config struct {
	// RobotAddr is the host:port the command channel sends to.
	RobotAddr string

	// StatusPort is the local UDP port the status channel binds.
	// Zero picks an ephemeral port (useful in tests).
	StatusPort int

	// GracePeriod is how long the link stays Connected after the last
	// valid status message.
	GracePeriod time.Duration

	// ReadTimeout bounds each blocking read so the receive loop can
	// observe shutdown. Defaults to 50ms.
	ReadTimeout time.Duration

	// Validator screens incoming poses. Nil gets a default validator.
	Validator *safety.Validator
}

// Link is a live UDP session with one robot.
type Link struct {
	id    string
	cfg   Config
	state *State

	cmdConn    *net.UDPConn
	statusConn *net.UDPConn

	closing   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open resolves the robot address, binds both sockets and starts the
// receive loop. Failures here are construction errors: no goroutine runs
// and no socket stays open on a non-nil error.
func Open(cfg Config) (*Link, error) {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 5 * time.Second
	}
	if cfg.Validator == nil {
		cfg.Validator = safety.New(0)
	}

	raddr, err := net.ResolveUDPAddr("udp", cfg.RobotAddr)
	if err != nil {
		return nil, fmt.Errorf("link: invalid robot address %q: %w", cfg.RobotAddr, err)
	}
	cmdConn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("link: command socket: %w", err)
	}
	statusConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: cfg.StatusPort})
	if err != nil {
		cmdConn.Close()
		return nil, fmt.Errorf("link: status socket: %w", err)
	}

	l := &Link{
		id:         uuid.NewString(),
		cfg:        cfg,
		state:      NewState(cfg.GracePeriod),
		cmdConn:    cmdConn,
		statusConn: statusConn,
		done:       make(chan struct{}),
	}
	log.Info("link open",
		"link", l.id,
		"robot", raddr.String(),
		"status", statusConn.LocalAddr().String())

	go l.receiveLoop()
	return l, nil
}

// Send encodes the command and fires it at the robot. A lost datagram is
// a lost datagram; the caller's cadence provides the redundancy.
func (l *Link) Send(cmd *protocol.Command) error {
	if l.closing.Load() {
		return ErrClosed
	}
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if _, err := l.cmdConn.Write(data); err != nil {
		log.Warn("command send failed", "link", l.id, "err", err)
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	return nil
}

// Pose returns the last valid pose, if any has arrived.
func (l *Link) Pose() (protocol.Pose, bool) {
	return l.state.Pose()
}

// Connected reports whether a valid status message arrived within the
// grace period.
func (l *Link) Connected() bool {
	return l.state.Connected()
}

// State exposes the shared state cell for callers that poll it directly.
func (l *Link) State() *State {
	return l.state
}

// StatusAddr returns the local address the status channel is bound to.
func (l *Link) StatusAddr() net.Addr {
	return l.statusConn.LocalAddr()
}

// Close stops the receive loop and tears the sockets down. It first asks
// the loop to exit and waits a short grace for the in-flight read to time
// out; if the loop is still blocked it force-closes the socket, which
// unblocks the read immediately. Safe to call more than once.
func (l *Link) Close() error {
	l.closing.Store(true)
	select {
	case <-l.done:
	case <-time.After(defaultCloseGrace):
		l.closeSockets()
		<-l.done
	}
	l.closeSockets()
	log.Info("link closed", "link", l.id)
	return l.closeErr
}

func (l *Link) closeSockets() {
	l.closeOnce.Do(func() {
		cmdErr := l.cmdConn.Close()
		statusErr := l.statusConn.Close()
		if cmdErr != nil {
			l.closeErr = cmdErr
		} else {
			l.closeErr = statusErr
		}
	})
}

// receiveLoop reads status datagrams until Close. Each read carries a
// short deadline so the closing flag is observed within one timeout.
// Malformed or unsafe payloads are dropped without touching State.
func (l *Link) receiveLoop() {
	defer close(l.done)

	buf := make([]byte, maxDatagram)
	for {
		if l.closing.Load() {
			return
		}
		if err := l.statusConn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
			return
		}
		n, _, err := l.statusConn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if l.closing.Load() {
				return
			}
			log.Warn("status receive error", "link", l.id, "err", err)
			continue
		}

		pose, err := protocol.DecodeStatus(buf[:n])
		if err != nil {
			log.Debug("dropping malformed status", "link", l.id, "err", err)
			continue
		}
		if rej := l.cfg.Validator.Pose(pose); rej != nil {
			log.Warn("dropping unsafe status", "link", l.id, "reason", rej)
			continue
		}
		l.state.Update(pose)
	}
}
