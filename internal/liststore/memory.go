package liststore

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is not durable and exists for
// tests and the `store.backend: memory` setting.
type MemoryStore struct {
	mu     sync.Mutex
	lists  map[string][][]byte
	wake   chan struct{} // closed and replaced on every push
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists: make(map[string][][]byte),
		wake:  make(chan struct{}),
	}
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	return nil
}

// PushTail implements Store.
func (s *MemoryStore) PushTail(_ context.Context, list string, item []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	s.pushLocked(list, clone(item))
	return nil
}

// pushLocked appends and wakes blocked pops. Must hold mu.
func (s *MemoryStore) pushLocked(list string, item []byte) {
	s.lists[list] = append(s.lists[list], item)
	close(s.wake)
	s.wake = make(chan struct{})
}

// PopHead implements Store.
func (s *MemoryStore) PopHead(ctx context.Context, list string, timeout time.Duration) ([]byte, error) {
	return s.pop(ctx, list, "", timeout)
}

// PopHeadPushTail implements Store.
func (s *MemoryStore) PopHeadPushTail(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error) {
	return s.pop(ctx, src, dst, timeout)
}

func (s *MemoryStore) pop(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, errClosed()
		}
		if items := s.lists[src]; len(items) > 0 {
			head := items[0]
			s.lists[src] = items[1:]
			if dst != "" {
				s.pushLocked(dst, head)
			}
			s.mu.Unlock()
			return clone(head), nil
		}
		wake := s.wake
		s.mu.Unlock()

		if deadline == nil {
			return nil, nil
		}
		select {
		case <-wake:
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RemoveFirst implements Store.
func (s *MemoryStore) RemoveFirst(_ context.Context, list string, item []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errClosed()
	}
	_, ok := s.removeLocked(list, item)
	return ok, nil
}

// MoveFirst implements Store.
func (s *MemoryStore) MoveFirst(_ context.Context, src, dst string, item, replacement []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errClosed()
	}

	removed, ok := s.removeLocked(src, item)
	if !ok {
		return false, nil
	}
	if replacement != nil {
		removed = clone(replacement)
	}
	s.pushLocked(dst, removed)
	return true, nil
}

func (s *MemoryStore) removeLocked(list string, item []byte) ([]byte, bool) {
	items := s.lists[list]
	for i, it := range items {
		if bytes.Equal(it, item) {
			s.lists[list] = append(items[:i:i], items[i+1:]...)
			return it, true
		}
	}
	return nil, false
}

// Length implements Store.
func (s *MemoryStore) Length(_ context.Context, list string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed()
	}
	return len(s.lists[list]), nil
}

// DeleteList implements Store.
func (s *MemoryStore) DeleteList(_ context.Context, list string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed()
	}
	n := len(s.lists[list])
	delete(s.lists, list)
	return n, nil
}

// ListAll implements Store.
func (s *MemoryStore) ListAll(_ context.Context, list string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed()
	}
	out := make([][]byte, len(s.lists[list]))
	for i, it := range s.lists[list] {
		out[i] = clone(it)
	}
	return out, nil
}

// Close implements Store. Blocked pops return NotConnected.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.wake)
	return nil
}
