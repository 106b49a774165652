// Package tags keeps a player's key/value tag profile in sync with the service.
//
// Writes are applied to a local view immediately and merged into a pending delta
// (last write wins per key). The delta is flushed as one PUT per batch, with at most
// one request in flight. Reads always go to the service.
package tags

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/transport"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// DefaultFlushDelay is how long writes are coalesced before a flush.
const DefaultFlushDelay = 250 * time.Millisecond

// pendingOp is the latest intent for one key. A delete is sent as "".
type pendingOp struct {
	value   string
	deleted bool
	seq     uint64
}

type waiter struct {
	seq  uint64
	done func(error)
}

// Synchronizer batches tag writes for one player.
type Synchronizer struct {
	appID      string
	requester  push.Requester
	flushDelay time.Duration
	logger     *slog.Logger
	base       context.Context

	mu       sync.Mutex
	playerID string
	local    map[string]string
	pending  map[string]pendingOp
	waiters  []waiter
	seq      uint64
	timer    *time.Timer
	inFlight bool
	closed   bool
}

// New creates a Synchronizer. Flushes run on base and stop when it is cancelled.
func New(base context.Context, appID string, requester push.Requester, flushDelay time.Duration, logger *slog.Logger) *Synchronizer {
	if flushDelay < 0 {
		flushDelay = 0
	}
	return &Synchronizer{
		appID:      appID,
		requester:  requester,
		flushDelay: flushDelay,
		logger:     logger.With("component", "TagSynchronizer"),
		base:       base,
		local:      make(map[string]string),
		pending:    make(map[string]pendingOp),
	}
}

// --- Writes ---

// Send merges tags into the local view and queues them for the service.
// done is called once the batch carrying these tags has been acknowledged or has failed.
func (s *Synchronizer) Send(tags map[string]string, done func(error)) {
	ops := make(map[string]pendingOp, len(tags))
	for k, v := range tags {
		ops[k] = pendingOp{value: v}
	}
	s.enqueue(ops, done)
}

// Delete queues removal of keys.
func (s *Synchronizer) Delete(keys []string, done func(error)) {
	ops := make(map[string]pendingOp, len(keys))
	for _, k := range keys {
		ops[k] = pendingOp{deleted: true}
	}
	s.enqueue(ops, done)
}

func (s *Synchronizer) enqueue(ops map[string]pendingOp, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if len(ops) == 0 {
		done(nil)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		done(push.ErrClientClosed)
		return
	}

	s.seq++
	for k, op := range ops {
		op.seq = s.seq
		s.pending[k] = op
		if op.deleted {
			delete(s.local, k)
		} else {
			s.local[k] = op.value
		}
	}
	s.waiters = append(s.waiters, waiter{seq: s.seq, done: done})
	s.scheduleLocked(s.flushDelay)
	s.mu.Unlock()
}

// SetPlayerID releases writes buffered while the player was unknown.
func (s *Synchronizer) SetPlayerID(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if playerID == "" || s.playerID == playerID {
		return
	}
	s.playerID = playerID
	if len(s.pending) > 0 {
		s.logger.Debug("Player id available, releasing buffered tags", "player_id", playerID, "keys", len(s.pending))
		s.scheduleLocked(0)
	}
}

// Flush sends everything pending now and waits for the outcome.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return push.ErrClientClosed
	}
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	if s.playerID == "" {
		s.mu.Unlock()
		return push.ErrNoPlayerID
	}

	result := make(chan error, 1)
	s.waiters = append(s.waiters, waiter{seq: s.seq, done: func(err error) { result <- err }})
	s.scheduleLocked(0)
	s.mu.Unlock()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops pending timers and fails every outstanding waiter with push.ErrClientClosed.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		w.done(push.ErrClientClosed)
	}
}

// --- Reads ---

// Get returns the service's committed tags. Pending local writes are not included.
func (s *Synchronizer) Get(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	playerID := s.playerID
	s.mu.Unlock()
	if playerID == "" {
		return nil, push.ErrNoPlayerID
	}

	resp, err := s.requester.Do(ctx, http.MethodGet, transport.PlayerPath(playerID), nil)
	if err != nil {
		return nil, err
	}
	return decodeTags(resp["tags"])
}

// Local returns a copy of the optimistic local view.
func (s *Synchronizer) Local() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.local)
}

func decodeTags(raw any) (map[string]string, error) {
	out := make(map[string]string)
	if raw == nil {
		return out, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &push.Error{Kind: push.KindSerialization, Message: fmt.Sprintf("tags is %T, not an object", raw)}
	}
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// --- Flushing ---

// scheduleLocked arms a flush after delay unless one is already armed or running.
// A running flush re-checks pending work when it completes.
func (s *Synchronizer) scheduleLocked(delay time.Duration) {
	if s.closed || s.inFlight || s.playerID == "" {
		return
	}
	if s.timer != nil {
		if delay > 0 {
			return
		}
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.flush)
}

func (s *Synchronizer) flush() {
	// 1. Snapshot the delta
	s.mu.Lock()
	s.timer = nil
	if s.closed || s.inFlight || s.playerID == "" || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	playerID := s.playerID
	sentSeq := s.seq
	sent := make(map[string]pendingOp, len(s.pending))
	wire := make(map[string]string, len(s.pending))
	for k, op := range s.pending {
		sent[k] = op
		wire[k] = op.value
		if op.deleted {
			wire[k] = ""
		}
	}
	s.mu.Unlock()

	// 2. Send
	body := map[string]any{"app_id": s.appID, "tags": wire}
	_, err := s.requester.Do(s.base, http.MethodPut, transport.PlayerPath(playerID), body)

	// 3. Settle
	s.mu.Lock()
	s.inFlight = false
	if err == nil {
		for k, op := range sent {
			if cur, ok := s.pending[k]; ok && cur.seq == op.seq {
				delete(s.pending, k)
			}
		}
	}
	var settled []waiter
	remaining := s.waiters[:0]
	for _, w := range s.waiters {
		if w.seq <= sentSeq {
			settled = append(settled, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	s.waiters = remaining
	if s.seq > sentSeq {
		s.scheduleLocked(0)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Tag flush failed, delta kept for next flush", "player_id", playerID, "keys", len(wire), "retryable", push.Retryable(err), "err", err)
	} else {
		s.logger.Debug("Tags flushed", "player_id", playerID, "keys", len(wire))
	}
	for _, w := range settled {
		w.done(err)
	}
}
