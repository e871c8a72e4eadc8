package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps windows in process memory, bounded by a user cap and a TTL.
type MemoryStore struct {
	mu       sync.Mutex
	windows  map[int64]*Window
	ttl      time.Duration
	maxUsers int
	log      *slog.Logger
	now      func() time.Time
}

// NewMemoryStore builds a store holding at most maxUsers windows, each dropped after ttl of inactivity.
func NewMemoryStore(ttl time.Duration, maxUsers int, log *slog.Logger) *MemoryStore {
	if log == nil {
		log = slog.Default()
	}
	if maxUsers <= 0 {
		maxUsers = 10000
	}

	return &MemoryStore{
		windows:  make(map[int64]*Window),
		ttl:      ttl,
		maxUsers: maxUsers,
		log:      log,
		now:      time.Now,
	}
}

func (s *MemoryStore) Observe(_ context.Context, userID int64, text, topic string) (Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.loadLocked(userID, now)
	if w == nil {
		w = newWindow()
		s.windows[userID] = w
	}

	obs := w.observe(text, topic, now)
	s.evictLocked()
	return obs, nil
}

func (s *MemoryStore) MarkReply(_ context.Context, userID int64, hadEmoji bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.loadLocked(userID, now)
	if w == nil {
		w = newWindow()
		s.windows[userID] = w
	}
	w.LastReplyHadEmoji = hadEmoji
	w.UpdatedAt = now
	s.evictLocked()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.loadLocked(userID, s.now())
	if w == nil {
		return *newWindow(), nil
	}
	return w.clone(), nil
}

// Len returns the number of tracked users.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Cleanup drops expired windows and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, w := range s.windows {
		if w.UpdatedAt.Before(cutoff) {
			delete(s.windows, id)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			if n := s.Cleanup(); n > 0 {
				s.log.Debug("expired session windows removed", slog.Int("removed", n))
			}
		}
	}
}

func (s *MemoryStore) loadLocked(userID int64, now time.Time) *Window {
	w, ok := s.windows[userID]
	if !ok {
		return nil
	}
	if s.ttl > 0 && now.Sub(w.UpdatedAt) > s.ttl {
		delete(s.windows, userID)
		return nil
	}
	return w
}

func (s *MemoryStore) evictLocked() {
	for len(s.windows) > s.maxUsers {
		var (
			oldestID int64
			oldestAt time.Time
			found    bool
		)
		for id, w := range s.windows {
			if !found || w.UpdatedAt.Before(oldestAt) {
				oldestID, oldestAt, found = id, w.UpdatedAt, true
			}
		}
		delete(s.windows, oldestID)
	}
}
