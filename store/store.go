// Package store holds the authoritative, immediately-consistent snapshot of
// a run's accumulated outputs. Writes and reads go through the mutex, never
// through the notification channels: the orchestrator always decides from
// the freshest value, while observers (UI) consume an asynchronous stream
// that is allowed to lag.
package store

import (
	"sync"
	"time"

	"autocast-pipeline/types"

	"github.com/google/uuid"
)

const subscriberBuffer = 64

// Store is the mutable cell for the live Run plus the append-only audit log
type Store struct {
	mu      sync.Mutex
	run     types.Run
	entries []types.LogEntry

	runSubs map[chan types.Run]struct{}
	logSubs map[chan types.LogEntry]struct{}
}

// New creates an empty store at stage Idle
func New() *Store {
	return &Store{
		run:     types.Run{Stage: types.StageIdle},
		runSubs: make(map[chan types.Run]struct{}),
		logSubs: make(map[chan types.LogEntry]struct{}),
	}
}

// Reset replaces the live run with a fresh one and clears the log.
// A new run fully replaces the previous one's fields.
func (s *Store) Reset(autonomous bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = types.Run{Stage: types.StageIdle, Autonomous: autonomous}
	s.entries = nil
	s.notifyRun()
}

// Snapshot returns a deep copy of the live run, safe to hand across
// goroutine boundaries
func (s *Store) Snapshot() types.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.Clone()
}

// Stage returns the current stage
func (s *Store) Stage() types.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.Stage
}

// SetStage moves the run to a new stage
func (s *Store) SetStage(stage types.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Stage = stage
	s.notifyRun()
}

// SetAutonomous flips the auto-loop flag
func (s *Store) SetAutonomous(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Autonomous = on
	s.notifyRun()
}

// Autonomous reads the auto-loop flag
func (s *Store) Autonomous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.Autonomous
}

// SetTopic commits the selected topic
func (s *Store) SetTopic(t *types.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Topic = t
	s.notifyRun()
}

// SetScript commits the generated script. The commit is synchronous, so a
// later stage can never observe a nil script due to propagation delay.
func (s *Store) SetScript(sc *types.Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Script = sc
	s.notifyRun()
}

// SetUploadedID records the remote id returned by the publish gateway
func (s *Store) SetUploadedID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.UploadedID = id
	s.notifyRun()
}

// ApplyAssets folds one sub-stage's patch into the bundle
func (s *Store) ApplyAssets(p types.AssetPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Assets.Apply(p)
	s.notifyRun()
}

// Log appends one entry to the audit trail. Entries are never mutated or
// removed.
func (s *Store) Log(severity types.Severity, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := types.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Message:   message,
		Severity:  severity,
	}
	s.entries = append(s.entries, entry)
	for ch := range s.logSubs {
		select {
		case ch <- entry:
		default: // slow observer, drop rather than block the pipeline
		}
	}
}

// Entries replays the full audit trail
func (s *Store) Entries() []types.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.LogEntry(nil), s.entries...)
}

// Subscribe registers an observer for run updates. The returned cancel
// must be called to release the channel.
func (s *Store) Subscribe() (<-chan types.Run, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan types.Run, subscriberBuffer)
	s.runSubs[ch] = struct{}{}
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.runSubs, ch)
	}
	return ch, cancel
}

// SubscribeLogs registers an observer for new audit entries
func (s *Store) SubscribeLogs() (<-chan types.LogEntry, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan types.LogEntry, subscriberBuffer)
	s.logSubs[ch] = struct{}{}
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.logSubs, ch)
	}
	return ch, cancel
}

// notifyRun pushes the current snapshot to observers; callers hold s.mu
func (s *Store) notifyRun() {
	snap := s.run.Clone()
	for ch := range s.runSubs {
		select {
		case ch <- snap:
		default:
		}
	}
}
