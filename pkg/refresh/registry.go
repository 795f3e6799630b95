package refresh

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/killallgit/agentstream/pkg/logger"
)

// Key identifies a domain object whose views may need refreshing
type Key struct {
	Kind string
	ID   string
}

func (k Key) String() string {
	return k.Kind + "/" + k.ID
}

// Registry records the last time each object was signalled as changed.
// Entries are overwritten on every bump and never expire.
type Registry struct {
	mu      sync.Mutex
	last    map[Key]time.Time
	subs    map[Key]map[int]chan time.Time
	nextSub int
	now     func() time.Time
	log     *logger.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		last: make(map[Key]time.Time),
		subs: make(map[Key]map[int]chan time.Time),
		now:  time.Now,
		log:  logger.WithComponent("refresh"),
	}
}

// Bump marks the object as changed now. Timestamps for a key strictly
// increase even when two bumps land within the clock's resolution.
func (r *Registry) Bump(kind, id string) time.Time {
	key := Key{Kind: kind, ID: id}

	r.mu.Lock()
	ts := r.now()
	if prev, ok := r.last[key]; ok && !ts.After(prev) {
		ts = prev.Add(time.Nanosecond)
	}
	r.last[key] = ts
	for _, ch := range r.subs[key] {
		deliver(ch, ts)
	}
	r.mu.Unlock()

	r.log.Debug("Refresh signal raised", "kind", kind, "id", id)
	return ts
}

// deliver replaces any undelivered value so subscribers always see the latest bump
func deliver(ch chan time.Time, ts time.Time) {
	select {
	case ch <- ts:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ts:
	default:
	}
}

// Last returns the most recent bump for the object
func (r *Registry) Last(kind, id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.last[Key{Kind: kind, ID: id}]
	return ts, ok
}

// Changed reports whether the object was bumped after since
func (r *Registry) Changed(kind, id string, since time.Time) bool {
	ts, ok := r.Last(kind, id)
	return ok && ts.After(since)
}

// Keys returns every key that has been bumped, sorted by kind then id
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.last))
	for k := range r.last {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

// Subscribe returns a channel receiving the timestamp of each bump of the
// object and a function that ends the subscription. Slow readers only see
// the latest timestamp.
func (r *Registry) Subscribe(kind, id string) (<-chan time.Time, func()) {
	key := Key{Kind: kind, ID: id}
	ch := make(chan time.Time, 1)

	r.mu.Lock()
	subID := r.nextSub
	r.nextSub++
	if r.subs[key] == nil {
		r.subs[key] = make(map[int]chan time.Time)
	}
	r.subs[key][subID] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs[key], subID)
			if len(r.subs[key]) == 0 {
				delete(r.subs, key)
			}
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

const (
	pendingWaiting int32 = iota
	pendingFired
	pendingCancelled
)

// Pending is a bump scheduled for later. It fires at most once.
type Pending struct {
	Key   Key
	timer *time.Timer
	state atomic.Int32
	fired chan struct{}
}

// Schedule bumps the object after delay unless the returned handle is
// cancelled first.
func (r *Registry) Schedule(kind, id string, delay time.Duration) *Pending {
	p := &Pending{
		Key:   Key{Kind: kind, ID: id},
		fired: make(chan struct{}),
	}
	p.timer = time.AfterFunc(delay, func() {
		if !p.state.CompareAndSwap(pendingWaiting, pendingFired) {
			return
		}
		r.Bump(kind, id)
		close(p.fired)
	})

	r.log.Debug("Refresh scheduled", "kind", kind, "id", id, "delay", delay)
	return p
}

// Cancel stops the bump. It returns false if the bump already fired or was
// cancelled before.
func (p *Pending) Cancel() bool {
	if !p.state.CompareAndSwap(pendingWaiting, pendingCancelled) {
		return false
	}
	p.timer.Stop()
	return true
}

// Fired is closed once the bump has been applied
func (p *Pending) Fired() <-chan struct{} {
	return p.fired
}

// Cancelled reports whether Cancel stopped the bump
func (p *Pending) Cancelled() bool {
	return p.state.Load() == pendingCancelled
}
