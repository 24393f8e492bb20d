package link

import (
	"sync"
	"time"

	"github.com/hri-lab/go-quadlink/pkg/protocol"
)

// State is the synchronized record shared between the receive loop and
// the caller: the last valid pose, when it arrived, and the connectivity
// derived from that. It is owned by the Link and only ever touched
// through these accessors.
type State struct {
	mu       sync.RWMutex
	pose     protocol.Pose
	havePose bool
	lastRecv time.Time
	grace    time.Duration
}

// NewState returns a state cell whose watchdog trips after the given
// period of silence.
func NewState(grace time.Duration) *State {
	return &State{grace: grace}
}

// Update stores a validated pose and refreshes the receive clock.
// Only the receive loop calls this.
func (s *State) Update(p *protocol.Pose) {
	s.mu.Lock()
	s.pose = *p
	s.havePose = true
	s.lastRecv = time.Now()
	s.mu.Unlock()
}

// Pose returns the last valid pose and whether one has been received at
// all. A stale link still reports its last known pose.
func (s *State) Pose() (protocol.Pose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose, s.havePose
}

// Connected is the lazily evaluated watchdog: true while the last valid
// message is younger than the grace period. No timer fires anywhere;
// staleness is computed at read time.
func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.havePose {
		return false
	}
	return time.Since(s.lastRecv) < s.grace
}

// LastReceived returns when the last valid message arrived (zero before
// the first one).
func (s *State) LastReceived() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRecv
}
