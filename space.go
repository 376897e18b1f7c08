package qbridge

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of a job as seen by whoever awaits it.
type Result struct {
	Value     any
	Error     error
	CreatedAt time.Time
	TTL       time.Duration
}

/*
Space holds job results until they expire and hands them to awaiting
callers, whether the caller arrives before or after the job finishes.
*/
type Space struct {
	mu      sync.Mutex
	values  map[string]Result
	waiting map[string][]chan Result
	wg      sync.WaitGroup
	now     func() time.Time
}

func newSpace(ctx context.Context, sweep time.Duration) *Space {
	s := &Space{
		values:  make(map[string]Result),
		waiting: make(map[string][]chan Result),
		now:     time.Now,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cleanup(ctx, sweep)
	}()

	return s
}

// Store records the result of job id and wakes every caller awaiting it.
func (s *Space) Store(id string, value any, err error, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := Result{
		Value:     value,
		Error:     err,
		CreatedAt: s.now(),
		TTL:       ttl,
	}
	s.values[id] = result

	for _, ch := range s.waiting[id] {
		ch <- result
		close(ch)
	}
	delete(s.waiting, id)
}

// Await returns a channel that delivers the result of job id exactly once.
func (s *Space) Await(id string) <-chan Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Result, 1)

	if result, ok := s.values[id]; ok {
		ch <- result
		close(ch)
		return ch
	}

	s.waiting[id] = append(s.waiting[id], ch)
	return ch
}

// Forget drops a stored result before it expires.
func (s *Space) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, id)
}

func (s *Space) cleanup(ctx context.Context, sweep time.Duration) {
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expire()
		}
	}
}

func (s *Space) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, result := range s.values {
		if result.TTL > 0 && now.Sub(result.CreatedAt) > result.TTL {
			delete(s.values, id)
		}
	}
}

// wait blocks until the sweeper has stopped. The sweeper's context must be done.
func (s *Space) wait() {
	s.wg.Wait()
}
