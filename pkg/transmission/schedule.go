package transmission

import (
	"math/rand"
	"sync"
	"time"
)

// Schedule yields the timeouts a confirmable message waits through: a
// random initial timeout in [AckTimeout, AckTimeout*AckRandomFactor]
// doubled for each of the MaxRetransmit retransmissions.
type Schedule struct {
	mu sync.Mutex

	params Params

	// Timeout of the next wait (jitter already applied)
	current time.Duration

	// Waits handed out since the last reset
	attempts int

	rng *rand.Rand
}

// NewSchedule creates a schedule with a time-seeded random source.
func NewSchedule(p Params) *Schedule {
	return NewScheduleWithRand(p, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewScheduleWithRand creates a schedule with the given random source.
func NewScheduleWithRand(p Params, rng *rand.Rand) *Schedule {
	s := &Schedule{params: p, rng: rng}
	s.current = s.initial()
	return s
}

func (s *Schedule) initial() time.Duration {
	spread := s.params.AckRandomFactor - 1
	if spread <= 0 {
		return s.params.AckTimeout
	}
	return time.Duration(float64(s.params.AckTimeout) * (1 + spread*s.rng.Float64()))
}

// Next returns the timeout for the next wait. It returns false once the
// initial transmission and all retransmissions have timed out.
func (s *Schedule) Next() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempts > s.params.MaxRetransmit {
		return 0, false
	}
	d := s.current
	s.attempts++
	s.current *= 2
	return d, true
}

// Reset starts over with a fresh random initial timeout.
func (s *Schedule) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = 0
	s.current = s.initial()
}

// Attempts returns the number of waits handed out since the last reset.
func (s *Schedule) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Retransmissions returns how many retransmissions have been scheduled.
func (s *Schedule) Retransmissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(s.attempts-1, 0)
}

// Sequence returns the timeouts without jitter, one per transmission.
func Sequence(p Params) []time.Duration {
	out := make([]time.Duration, p.MaxRetransmit+1)
	d := p.AckTimeout
	for i := range out {
		out[i] = d
		d *= 2
	}
	return out
}
