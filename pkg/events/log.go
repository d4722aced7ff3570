// Package events provides the in-process governance event log: an
// append-only sequence of structured signals with deterministic ids so a
// replay of the same decisions produces byte-identical events. The log is
// not durable storage; collaborators drain Snapshot into whatever audit
// sink they own.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Type names a governance signal.
type Type string

const (
	TypeLegalReadiness  Type = "legal.readiness"
	TypeFounderNotice   Type = "founder.notice"
	TypePolicyEscalated Type = "policy.escalated"
	TypePolicyBlocked   Type = "policy.blocked"
)

// Event is one emitted signal. The id is derived from type, context key and
// timestamp; no randomness is involved, which makes exact replay matching
// possible.
type Event struct {
	ID         string         `json:"id"`
	Sequence   uint64         `json:"sequence"`
	Type       Type           `json:"type"`
	ContextKey string         `json:"context_key"`
	EmittedAt  time.Time      `json:"emitted_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Log is the process-wide event log. Instantiate once at service start and
// inject it; components never reach for a package-level instance.
type Log struct {
	mu     sync.Mutex
	events []Event
	clock  func() time.Time
	logger *slog.Logger
}

// NewLog creates an empty log.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{clock: time.Now, logger: logger}
}

// WithClock overrides the clock for deterministic testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Emit appends a signal and returns it.
func (l *Log) Emit(t Type, contextKey string, payload map[string]any) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock().UTC()
	ev := Event{
		ID:         deriveID(t, contextKey, now),
		Sequence:   uint64(len(l.events)) + 1,
		Type:       t,
		ContextKey: contextKey,
		EmittedAt:  now,
		Payload:    payload,
	}
	l.events = append(l.events, ev)

	l.logger.Info("governance event",
		slog.String("event_id", ev.ID),
		slog.String("type", string(t)),
		slog.String("context_key", contextKey),
	)
	return ev
}

// Snapshot returns a copy of all events emitted so far.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// DrainSince returns events with a sequence strictly greater than seq.
func (l *Log) DrainSince(seq uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Sequence > seq {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Clear empties the log. Only test harnesses and controlled environments
// may call this; production collaborators drain snapshots instead.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func deriveID(t Type, contextKey string, ts time.Time) string {
	input := fmt.Sprintf("%s|%s|%s", t, contextKey, ts.Format(time.RFC3339Nano))
	h := sha256.Sum256([]byte(input))
	return "evt-" + hex.EncodeToString(h[:8])
}
