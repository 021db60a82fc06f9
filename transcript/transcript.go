// Package transcript accumulates streamed transcription fragments into
// ordered conversation turns.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a turn.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderModel Sender = "model"
)

// Turn is one uninterrupted span of speech attributed to a single sender.
// Text grows while the turn is incomplete; a complete turn never changes.
type Turn struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	StartedAt time.Time `json:"startedAt"`
	Complete  bool      `json:"isComplete"`
}

// Log is an append-only sequence of turns. Fragments for the user and the
// model arrive interleaved from the session reader, so all mutation is
// mutex-serialized.
//
// Invariant: at most one trailing incomplete turn per sender. A fragment
// either extends the last turn when it belongs to the same sender and is
// still incomplete, or starts a new turn.
type Log struct {
	mu    sync.Mutex
	turns []Turn
}

// NewLog creates an empty transcript log.
func NewLog() *Log {
	return &Log{}
}

// Append merges a fragment into the log and returns a copy of the
// affected turn.
func (l *Log) Append(sender Sender, fragment string) Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.turns); n > 0 {
		last := &l.turns[n-1]
		if last.Sender == sender && !last.Complete {
			last.Text += fragment
			return *last
		}
	}

	turn := Turn{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      fragment,
		StartedAt: time.Now(),
	}
	l.turns = append(l.turns, turn)
	return turn
}

// FinalizeAll marks every incomplete turn complete and returns copies of
// the turns it changed. Text is never merged or truncated.
func (l *Log) FinalizeAll() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	var changed []Turn
	for i := range l.turns {
		if !l.turns[i].Complete {
			l.turns[i].Complete = true
			changed = append(changed, l.turns[i])
		}
	}
	return changed
}

// FinalizeLast marks the trailing turn complete when it belongs to sender
// and is still incomplete. Used when the model is interrupted mid-utterance,
// so the next reply starts a fresh turn instead of extending the stale one.
func (l *Log) FinalizeLast(sender Sender) (Turn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.turns); n > 0 {
		last := &l.turns[n-1]
		if last.Sender == sender && !last.Complete {
			last.Complete = true
			return *last, true
		}
	}
	return Turn{}, false
}

// Turns returns a snapshot copy of all turns in insertion order.
func (l *Log) Turns() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Reset clears all turns.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
}
