package stats

import (
	"sync"
	"sync/atomic"
)

// numShards spreads bucket keys across independent maps so concurrent
// flushers targeting different seconds rarely touch the same shard.
const numShards = 16

type bucketKey struct {
	role   Role
	second int64
}

type bucket struct {
	messages atomic.Int64
	bytes    atomic.Int64
}

// bucketStore is the global per-second counter map. Writers use an
// increment-or-create-with-retry discipline so no update is ever lost,
// regardless of how many connections flush the same key concurrently.
type bucketStore struct {
	shards [numShards]sync.Map // bucketKey -> *bucket
}

func newBucketStore() *bucketStore {
	return &bucketStore{}
}

func (s *bucketStore) shard(second int64) *sync.Map {
	return &s.shards[uint64(second)%numShards]
}

// Add atomically adds deltas to the bucket for (role, second), creating
// it if absent. Creation can lose a race to a concurrent creator; the
// losing writer retries the in-place increment on the winner's bucket.
func (s *bucketStore) Add(role Role, second, messages, byteCount int64) {
	m := s.shard(second)
	key := bucketKey{role: role, second: second}
	for {
		if v, ok := m.Load(key); ok {
			b := v.(*bucket)
			b.messages.Add(messages)
			b.bytes.Add(byteCount)
			return
		}
		b := &bucket{}
		b.messages.Store(messages)
		b.bytes.Store(byteCount)
		if _, loaded := m.LoadOrStore(key, b); !loaded {
			return
		}
	}
}

// Take removes and returns the bucket totals for (role, second).
// A missing bucket reads as zero.
func (s *bucketStore) Take(role Role, second int64) (messages, byteCount int64) {
	v, ok := s.shard(second).LoadAndDelete(bucketKey{role: role, second: second})
	if !ok {
		return 0, 0
	}
	b := v.(*bucket)
	return b.messages.Load(), b.bytes.Load()
}

// latencyStore is the global per-second latency-summary map. Each
// flushing connection appends one Summary per second; the drain loop
// removes the whole list once.
type latencyStore struct {
	shards [numShards]latencyShard
}

type latencyShard struct {
	mu sync.Mutex
	m  map[int64][]Summary
}

func newLatencyStore() *latencyStore {
	s := &latencyStore{}
	for i := range s.shards {
		s.shards[i].m = make(map[int64][]Summary)
	}
	return s
}

func (s *latencyStore) shard(second int64) *latencyShard {
	return &s.shards[uint64(second)%numShards]
}

func (s *latencyStore) Append(second int64, sum Summary) {
	sh := s.shard(second)
	sh.mu.Lock()
	sh.m[second] = append(sh.m[second], sum)
	sh.mu.Unlock()
}

// Take removes and returns all summaries recorded for the second.
func (s *latencyStore) Take(second int64) []Summary {
	sh := s.shard(second)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	out := sh.m[second]
	delete(sh.m, second)
	return out
}
