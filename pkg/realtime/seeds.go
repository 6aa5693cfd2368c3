package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sketchplanations/sketchweb/pkg/session"
)

// DefaultMaxSeeds bounds a SeedStore created with a non-positive limit.
const DefaultMaxSeeds = 10000

// SeedStore hands the search a page was rendered with over to the live
// connection that page opens. Each seed can be taken once and expires after
// ttl. At most limit seeds are held; storing one more evicts the oldest.
type SeedStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	limit int
	now   func() time.Time
	seeds map[string]storedSeed
	// order lists tokens oldest first. Taken tokens stay until they reach
	// the front.
	order []queuedToken
}

type storedSeed struct {
	seed    session.Seed
	expires time.Time
}

type queuedToken struct {
	token   string
	expires time.Time
}

// NewSeedStore creates a store. A non-positive ttl defaults to two minutes
// and a non-positive limit to DefaultMaxSeeds.
func NewSeedStore(ttl time.Duration, limit int) *SeedStore {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if limit <= 0 {
		limit = DefaultMaxSeeds
	}
	return &SeedStore{
		ttl:   ttl,
		limit: limit,
		now:   time.Now,
		seeds: make(map[string]storedSeed),
	}
}

// Put stores seed and returns the token that retrieves it.
func (s *SeedStore) Put(seed session.Seed) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	for len(s.seeds) >= s.limit && len(s.order) > 0 {
		delete(s.seeds, s.order[0].token)
		s.order = s.order[1:]
	}
	expires := s.now().Add(s.ttl)
	s.seeds[token] = storedSeed{seed: seed, expires: expires}
	s.order = append(s.order, queuedToken{token: token, expires: expires})
	return token
}

// Take returns and forgets the seed stored under token.
func (s *SeedStore) Take(token string) (*session.Seed, bool) {
	if token == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.seeds[token]
	if !ok {
		return nil, false
	}
	delete(s.seeds, token)
	if s.now().After(stored.expires) {
		return nil, false
	}
	seed := stored.seed
	return &seed, true
}

// Len returns the number of stored seeds, expired ones included.
func (s *SeedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seeds)
}

// Sweep drops expired seeds.
func (s *SeedStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
}

// Run sweeps every interval until ctx is done. A non-positive interval
// sweeps once per ttl.
func (s *SeedStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// sweep relies on every seed living for the same ttl, so expiry follows
// insertion order.
func (s *SeedStore) sweep() {
	now := s.now()
	n := 0
	for n < len(s.order) {
		q := s.order[n]
		if _, ok := s.seeds[q.token]; ok && !now.After(q.expires) {
			break
		}
		delete(s.seeds, q.token)
		n++
	}
	if n > 0 {
		s.order = append(s.order[:0:0], s.order[n:]...)
	}
	if len(s.order) > 2*s.limit {
		live := s.order[:0]
		for _, q := range s.order {
			if _, ok := s.seeds[q.token]; ok {
				live = append(live, q)
			}
		}
		s.order = live
	}
}
