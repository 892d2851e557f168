package presence

import (
	"context"
	"fmt"
	"sync"
)

// Store persists presence records.
type Store interface {
	SetOnline(ctx context.Context, userID int, online bool) error
}

// Tracker reference-counts the open connections of each user so presence only
// flips offline when the last connection closes. A user's count and the store
// write it triggers happen under that user's lock, so concurrent connects and
// disconnects reach the store in the order they were counted.
type Tracker struct {
	store Store
	mu    sync.Mutex
	users map[int]*entry
}

type entry struct {
	mu    sync.Mutex
	conns int
	refs  int
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, users: make(map[int]*entry)}
}

// SetOnline upserts the presence record directly, bypassing reference counting.
func (t *Tracker) SetOnline(ctx context.Context, userID int, online bool) error {
	return t.store.SetOnline(ctx, userID, online)
}

// Connect counts a new connection; the first one marks the user online.
func (t *Tracker) Connect(ctx context.Context, userID int) error {
	e := t.acquire(userID)
	defer t.release(userID, e)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns++
	if e.conns > 1 {
		return nil
	}
	if err := t.store.SetOnline(ctx, userID, true); err != nil {
		return fmt.Errorf("set user %d online: %w", userID, err)
	}
	return nil
}

// Disconnect drops one connection. It reports whether that was the user's last one,
// in which case the user is marked offline.
func (t *Tracker) Disconnect(ctx context.Context, userID int) (bool, error) {
	e := t.acquire(userID)
	defer t.release(userID, e)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conns > 0 {
		e.conns--
	}
	if e.conns > 0 {
		return false, nil
	}
	if err := t.store.SetOnline(ctx, userID, false); err != nil {
		return true, fmt.Errorf("set user %d offline: %w", userID, err)
	}
	return true, nil
}

// Online reports whether this process holds an open connection for the user.
func (t *Tracker) Online(userID int) bool {
	e := t.acquire(userID)
	defer t.release(userID, e)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns > 0
}

func (t *Tracker) acquire(userID int) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		e = &entry{}
		t.users[userID] = e
	}
	e.refs++
	return e
}

func (t *Tracker) release(userID int, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs > 0 {
		return
	}
	e.mu.Lock()
	idle := e.conns == 0
	e.mu.Unlock()
	if idle {
		delete(t.users, userID)
	}
}
