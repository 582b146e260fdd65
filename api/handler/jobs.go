package handler

import (
	"sync"
	"time"

	"github.com/use-agent/browserfetch/models"
)

const (
	jobSweepInterval = 5 * time.Minute
	jobLifetime      = time.Hour
)

type job struct {
	resp      models.AsyncFetchResponse
	createdAt time.Time
}

// JobStore holds async fetch jobs for an hour after creation.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*job
	stop chan struct{}
	once sync.Once
}

func NewJobStore() *JobStore {
	s := &JobStore{jobs: make(map[string]*job), stop: make(chan struct{})}
	go s.sweepLoop()
	return s
}

func (s *JobStore) put(resp models.AsyncFetchResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[resp.ID]; ok {
		j.resp = resp
		return
	}
	s.jobs[resp.ID] = &job{resp: resp, createdAt: time.Now()}
}

// Get returns a copy of the job with the given id.
func (s *JobStore) Get(id string) (models.AsyncFetchResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return models.AsyncFetchResponse{}, false
	}
	return j.resp, true
}

// Close stops the sweeper.
func (s *JobStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *JobStore) sweepLoop() {
	ticker := time.NewTicker(jobSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-jobLifetime)
			s.mu.Lock()
			for id, j := range s.jobs {
				if j.createdAt.Before(cutoff) {
					delete(s.jobs, id)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}
