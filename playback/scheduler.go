// Package playback serializes decoded audio buffers onto a single gapless
// playback timeline with support for mid-utterance cancellation.
package playback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/pcm"
)

// Handle identifies one in-flight buffer on the output device. Stop must be
// safe to call after the buffer has already finished.
type Handle interface {
	Stop()
}

// Sink is the playback device boundary: a monotone device clock plus a
// buffer-scheduling primitive with a completion callback.
type Sink interface {
	// Clock returns the current device time in seconds.
	Clock() float64
	// Play schedules buf to start at device time `when`. done fires once,
	// when the buffer drains or is stopped.
	Play(buf *pcm.Buffer, when float64, done func()) (Handle, error)
}

// Scheduler plays an unbounded sequence of buffers back to back with zero
// gap and zero overlap. Schedule, completion callbacks and Interrupt arrive
// from different goroutines, so all state is mutex-guarded.
type Scheduler struct {
	sink Sink

	mu        sync.Mutex
	nextStart float64
	active    map[*entry]struct{}
	seq       uint64
}

type entry struct {
	handle Handle
}

// NewScheduler creates a scheduler over the given sink.
func NewScheduler(sink Sink) *Scheduler {
	return &Scheduler{
		sink:   sink,
		active: make(map[*entry]struct{}),
	}
}

// Schedule queues buf to start as soon as the previous buffer ends, or
// immediately when the timeline has fallen behind the device clock.
func (s *Scheduler) Schedule(buf *pcm.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	startAt := s.nextStart
	if now := s.sink.Clock(); now > startAt {
		startAt = now
	}

	e := &entry{}
	handle, err := s.sink.Play(buf, startAt, func() { s.release(e) })
	if err != nil {
		return fmt.Errorf("schedule playback: %w", err)
	}
	e.handle = handle

	s.active[e] = struct{}{}
	s.nextStart = startAt + buf.Duration()
	s.seq++
	slog.Debug("scheduled playback buffer",
		"seq", s.seq, "start", startAt, "duration", buf.Duration())
	return nil
}

// release drops a finished buffer from the active set.
func (s *Scheduler) release(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, e)
}

// Interrupt stops every in-flight buffer, clears the active set and resets
// the timeline to zero so the next reply starts playing immediately. The
// timeline is relative to time since the last reset, not wall clock, which
// makes the reset safe.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := make([]*entry, 0, len(s.active))
	for e := range s.active {
		stopped = append(stopped, e)
	}
	s.active = make(map[*entry]struct{})
	s.nextStart = 0
	s.mu.Unlock()

	// Stop outside the lock: sinks may fire the done callback inline,
	// which takes the lock again in release.
	for _, e := range stopped {
		e.handle.Stop()
	}
	if len(stopped) > 0 {
		slog.Debug("playback interrupted", "cancelled", len(stopped))
	}
}

// Active returns the number of in-flight buffers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the timeline position where the next buffer will be
// scheduled, in seconds.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
