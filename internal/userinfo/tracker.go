package userinfo

import (
	"context"
	"sync"

	"vouchr.org/internal/auth"
)

// Snapshot is one computed capability set. A zero Snapshot is not loaded.
type Snapshot struct {
	Set        auth.PermissionSet
	Loaded     bool
	Generation uint64
}

// Tracker holds the latest snapshot for one session and recomputes it on Refetch
// (mount, focus, reconnect). Snapshots are replaced wholesale, never mutated.
type Tracker struct {
	fetcher Fetcher
	sess    auth.Session

	mu      sync.Mutex
	snap    Snapshot
	issued  uint64
	applied uint64
	subs    map[int]chan Snapshot
	nextSub int
}

// NewTracker returns a tracker with nothing loaded yet.
func NewTracker(f Fetcher, sess auth.Session) *Tracker {
	return &Tracker{fetcher: f, sess: sess, subs: make(map[int]chan Snapshot)}
}

// Current returns the latest snapshot.
func (t *Tracker) Current() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Refetch reloads the module listing and publishes the new snapshot. On error the previous
// snapshot stays current. A response that arrives after a newer one is discarded.
func (t *Tracker) Refetch(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	t.issued++
	seq := t.issued
	t.mu.Unlock()

	grants, err := t.fetcher.Fetch(ctx, t.sess.Token)
	if err != nil {
		return t.Current(), err
	}
	set := auth.BuildPermissionSet(t.sess.Role, auth.GrantsBySlug(grants))

	t.mu.Lock()
	defer t.mu.Unlock()
	if seq <= t.applied {
		return t.snap, nil
	}
	t.applied = seq
	t.snap = Snapshot{Set: set, Loaded: true, Generation: t.snap.Generation + 1}
	for _, ch := range t.subs {
		publish(ch, t.snap)
	}
	return t.snap, nil
}

// Subscribe returns a channel receiving every new snapshot (only the latest is kept when the
// reader falls behind) and a cancel func that closes it.
func (t *Tracker) Subscribe() (<-chan Snapshot, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	ch := make(chan Snapshot, 1)
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			close(ch)
		})
	}
}

func publish(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- s
}
