package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultMemoryMaxEntries    = 10000
	defaultMemorySweepInterval = time.Minute
)

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore はプロセス内に一時状態を保持するStore。
// 期限切れエントリはバックグラウンドで定期的に削除する。単一インスタンス構成向け。
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStore はMemoryStoreを生成し、期限切れエントリの掃除を開始する。
// maxEntriesが0以下の場合はデフォルト値を使用する。
func NewMemoryStore(maxEntries int, sweepInterval time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryMaxEntries
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultMemorySweepInterval
	}
	s := &MemoryStore{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

// Save は状態を保存する。上限に達している場合は期限切れを掃除してから判定する。
func (s *MemoryStore) Save(_ context.Context, token string, state *State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[token]; !exists && len(s.entries) >= s.maxEntries {
		s.sweepLocked()
		if len(s.entries) >= s.maxEntries {
			return ErrStoreFull
		}
	}

	s.entries[token] = memoryEntry{state: *state, expiresAt: s.now().Add(ttl)}
	return nil
}

// Load は状態を返す。期限切れの場合はnilを返す。
func (s *MemoryStore) Load(_ context.Context, token string) (*State, error) {
	s.mu.RLock()
	entry, ok := s.entries[token]
	s.mu.RUnlock()

	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, nil
	}
	st := entry.state
	return &st, nil
}

// Delete は状態を削除する。
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}

// Len は保持しているエントリ数を返す（期限切れを含む）。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close はバックグラウンドの掃除を停止する。
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			removed := s.sweepLocked()
			s.mu.Unlock()
			if removed > 0 {
				slog.Debug("expired session states removed", slog.Int("count", removed))
			}
		}
	}
}

// sweepLocked は期限切れエントリを削除し、削除件数を返す。呼び出し側でロックを保持すること。
func (s *MemoryStore) sweepLocked() int {
	now := s.now()
	removed := 0
	for token, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
