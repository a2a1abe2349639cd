package connectivity

import (
	"sync"

	"github.com/skypro1111/sos-alert-service/internal/metrics"
)

// Monitor reports reachability
type Monitor interface {
	// Online is a synchronous read of the last known state.
	Online() bool
	// Subscribe returns a channel receiving the new state on every transition
	// and a function that unsubscribes. A slow subscriber only sees the latest
	// state.
	Subscribe() (<-chan bool, func())
}

// state is the shared transition and fan-out logic
type state struct {
	mu      sync.Mutex
	online  bool
	subs    map[int]chan bool
	nextSub int
	metrics *metrics.Metrics
}

func newState(online bool, m *metrics.Metrics) *state {
	m.SetOnline(online)
	return &state{online: online, subs: make(map[int]chan bool), metrics: m}
}

func (s *state) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *state) Subscribe() (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan bool, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

// set records the state and reports whether it changed
func (s *state) set(online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online == online {
		return false
	}
	s.online = online
	s.metrics.SetOnline(online)

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
	return true
}

// Manual is a monitor whose state is set explicitly
type Manual struct {
	*state
}

// NewManual creates a manual monitor in the given state
func NewManual(online bool, m *metrics.Metrics) *Manual {
	return &Manual{state: newState(online, m)}
}

// Set changes the state and notifies subscribers on a transition
func (m *Manual) Set(online bool) bool {
	return m.set(online)
}
