package cacheinfra

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-querysync/cache"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// Interface assertion to ensure Store implements cache.Store
var _ cache.Store = (*Store)(nil)

// record is what sturdyc holds per key. The signature is kept next to the
// entry so lookups can verify they hit the right query.
type record struct {
	sig   cache.Signature
	entry cache.Entry
}

// slot carries the per signature state that sturdyc does not own:
// presence, subscribers, the generation and the notification queue. A slot
// with no entry and no subscribers is released.
type slot struct {
	sig cache.Signature

	// guarded by the stripe lock of the signature key
	generation uint64
	present    bool
	listeners  []*subscription

	mu       sync.Mutex
	queue    []notification
	draining bool
}

type subscription struct {
	fn     cache.Listener
	active atomic.Bool

	// held while fn runs so the disposer can wait for it
	mu sync.Mutex
}

// deliver runs fn unless the subscription was disposed. The active check
// and the call happen under mu.
func (sub *subscription) deliver(entry cache.Entry, present bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.active.Load() {
		return
	}
	sub.fn(entry, present)
}

type notification struct {
	entry     cache.Entry
	present   bool
	listeners []*subscription
}

// entryTTL is passed to sturdyc so entries never expire by age. Entries only
// become stale through Delete.
const entryTTL = 100 * 365 * 24 * time.Hour

// Store is a cache.Store backed by a sturdyc client.
type Store struct {
	client *sturdyc.Client[record]
	locks  *cache.KeyedMutex
	slots  *xsync.MapOf[string, *slot]
	gen    atomic.Uint64
	now    func() time.Time
	config Config
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used to stamp UpdatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a new sturdyc backed store.
// It validates the configuration and initializes a sturdyc client with the provided settings.
func NewStore(cfg Config, opts ...StoreOption) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[record](
		cfg.Capacity,
		cfg.NumShards,
		entryTTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	s := &Store{
		client: client,
		locks:  cache.NewKeyedMutex(cfg.LockStripes),
		slots:  xsync.NewMapOf[string, *slot](),
		now:    time.Now,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the configuration the store was built with.
func (s *Store) Config() Config {
	return s.config
}

// Get implements cache.Store.Get.
func (s *Store) Get(sig cache.Signature) (cache.Entry, bool) {
	key := sig.Key()
	unlock := s.locks.Lock(key)
	defer unlock()
	return s.load(sig, key)
}

// Set implements cache.Store.Set.
func (s *Store) Set(sig cache.Signature, entry cache.Entry) {
	key := sig.Key()
	unlock := s.locks.Lock(key)
	sl := s.slot(sig, key)
	s.write(sig, key, sl, entry)
	unlock()
	s.drain(sl)
}

// Delete implements cache.Store.Delete.
func (s *Store) Delete(sig cache.Signature) {
	key := sig.Key()
	unlock := s.locks.Lock(key)
	sl, ok := s.slots.Load(key)
	if !ok {
		// no entry and no fetch to fence
		unlock()
		return
	}
	sl.generation = s.gen.Add(1)
	if sl.present {
		sl.present = false
		s.client.Delete(key)
		s.enqueue(sl, cache.Entry{Status: cache.StatusIdle, Generation: sl.generation}, false)
	}
	s.release(key, sl)
	unlock()
	s.drain(sl)
}

// Update implements cache.Store.Update.
func (s *Store) Update(sig cache.Signature, fn cache.UpdateFunc) (cache.Entry, bool) {
	key := sig.Key()
	unlock := s.locks.Lock(key)
	sl := s.slot(sig, key)
	current, exists := s.load(sig, key)
	next, write := fn(current, exists)
	if !write {
		s.release(key, sl)
		unlock()
		return current, exists
	}
	stored := s.write(sig, key, sl, next)
	unlock()
	s.drain(sl)
	return stored, true
}

// Subscribe implements cache.Store.Subscribe. The disposer waits for a
// delivery in progress, so a listener that stops itself must call its
// disposer from another goroutine.
func (s *Store) Subscribe(sig cache.Signature, listener cache.Listener) func() {
	key := sig.Key()
	sub := &subscription{fn: listener}
	sub.active.Store(true)

	unlock := s.locks.Lock(key)
	sl := s.slot(sig, key)
	sl.listeners = append(sl.listeners, sub)
	unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)

			unlock := s.locks.Lock(key)
			for i, l := range sl.listeners {
				if l == sub {
					sl.listeners = append(sl.listeners[:i:i], sl.listeners[i+1:]...)
					break
				}
			}
			s.release(key, sl)
			unlock()

			// wait for a delivery that passed the active check
			sub.mu.Lock()
			sub.mu.Unlock()
		})
	}
}

// SubscriberCount implements cache.Store.SubscriberCount.
func (s *Store) SubscriberCount(sig cache.Signature) int {
	key := sig.Key()
	unlock := s.locks.Lock(key)
	defer unlock()
	if sl, ok := s.slots.Load(key); ok {
		return len(sl.listeners)
	}
	return 0
}

// Signatures implements cache.Store.Signatures. Signatures are listed from
// the slot index, so an entry sturdyc dropped to respect Capacity is still
// reachable by invalidation.
func (s *Store) Signatures(name string) []cache.Signature {
	var out []cache.Signature
	for _, sl := range s.liveSlots() {
		if sl.sig.Name() == name {
			out = append(out, sl.sig)
		}
	}
	return out
}

// Snapshot implements cache.Store.Snapshot.
func (s *Store) Snapshot() []cache.Record {
	slots := s.liveSlots()
	out := make([]cache.Record, 0, len(slots))
	for _, sl := range slots {
		if entry, ok := s.Get(sl.sig); ok {
			out = append(out, cache.Record{Signature: sl.sig, Entry: entry})
		}
	}
	return out
}

// liveSlots lists the slots holding an entry, ordered by key.
func (s *Store) liveSlots() []*slot {
	var keys []string
	s.slots.Range(func(key string, _ *slot) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)

	out := make([]*slot, 0, len(keys))
	for _, key := range keys {
		unlock := s.locks.Lock(key)
		if sl, ok := s.slots.Load(key); ok && sl.present {
			out = append(out, sl)
		}
		unlock()
	}
	return out
}

// Size returns the number of live entries.
func (s *Store) Size() int {
	return s.client.Size()
}

// slot returns the slot of key, creating it when missing. A new slot takes a
// generation no earlier incarnation of key has used, so a fetch started
// before the slot was released can never match it. Callers hold the stripe
// lock.
func (s *Store) slot(sig cache.Signature, key string) *slot {
	sl, _ := s.slots.LoadOrCompute(key, func() *slot {
		return &slot{sig: sig, generation: s.gen.Add(1)}
	})
	return sl
}

// release drops sl from the index once it has no entry and no subscribers.
// Callers hold the stripe lock.
func (s *Store) release(key string, sl *slot) {
	if sl.present || len(sl.listeners) > 0 {
		return
	}
	if cur, ok := s.slots.Load(key); ok && cur == sl {
		s.slots.Delete(key)
	}
}

// load reads an entry and fills in the store owned fields. Callers hold the stripe lock.
func (s *Store) load(sig cache.Signature, key string) (cache.Entry, bool) {
	var meta cache.Entry
	sl, ok := s.slots.Load(key)
	if ok {
		meta.Generation = sl.generation
		meta.SubscriberCount = len(sl.listeners)
	}
	if !ok || !sl.present {
		meta.Status = cache.StatusIdle
		return meta, false
	}

	// a miss here means sturdyc evicted the entry to respect Capacity
	rec, hit := s.client.Get(key)
	if !hit || rec.sig != sig {
		meta.Status = cache.StatusIdle
		return meta, false
	}
	entry := rec.entry
	entry.Generation = meta.Generation
	entry.SubscriberCount = meta.SubscriberCount
	return entry, true
}

// write stores entry and queues its notification. Callers hold the stripe lock.
func (s *Store) write(sig cache.Signature, key string, sl *slot, entry cache.Entry) cache.Entry {
	entry = entry.Normalize()
	if !entry.Hydrated || entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = s.now()
	}
	entry.Generation = sl.generation
	entry.SubscriberCount = len(sl.listeners)

	s.client.Set(key, record{sig: sig, entry: entry})
	sl.present = true
	s.enqueue(sl, entry, true)
	return entry
}

// enqueue records a notification in mutation order. Callers hold the stripe lock.
func (s *Store) enqueue(sl *slot, entry cache.Entry, present bool) {
	listeners := make([]*subscription, len(sl.listeners))
	copy(listeners, sl.listeners)

	sl.mu.Lock()
	sl.queue = append(sl.queue, notification{entry: entry, present: present, listeners: listeners})
	sl.mu.Unlock()
}

// drain delivers queued notifications outside of the stripe lock. Only one
// goroutine drains a slot at a time, so listeners observe mutations of a
// signature in the order they were applied. A listener may call back into
// the store; its own mutation is delivered after the current one.
func (s *Store) drain(sl *slot) {
	sl.mu.Lock()
	if sl.draining {
		sl.mu.Unlock()
		return
	}
	sl.draining = true

	defer func() {
		if r := recover(); r != nil {
			sl.mu.Lock()
			sl.draining = false
			sl.mu.Unlock()
			panic(r)
		}
	}()

	for len(sl.queue) > 0 {
		n := sl.queue[0]
		sl.queue[0] = notification{}
		sl.queue = sl.queue[1:]
		sl.mu.Unlock()

		for _, sub := range n.listeners {
			sub.deliver(n.entry, n.present)
		}

		sl.mu.Lock()
	}
	sl.draining = false
	sl.mu.Unlock()
}
