package sse

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a server-sent event
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// JobUpdate is the payload of a job status event
type JobUpdate struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer bounds how far a slow client may fall behind before events are dropped
const subscriberBuffer = 16

// Service fans job events out to subscribed clients
type Service struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[chan Event]struct{}
}

// NewService creates a new SSE service
func NewService() *Service {
	return &Service{
		subscribers: make(map[uuid.UUID]map[chan Event]struct{}),
	}
}

// Subscribe registers for events of one job. The returned cancel func must be called
// when the client goes away.
func (s *Service) Subscribe(jobID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	if s.subscribers[jobID] == nil {
		s.subscribers[jobID] = make(map[chan Event]struct{})
	}
	s.subscribers[jobID][ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers[jobID], ch)
			if len(s.subscribers[jobID]) == 0 {
				delete(s.subscribers, jobID)
			}
		})
	}
}

// Publish sends an event to every subscriber of the job without blocking.
// Subscribers with a full buffer miss the event.
func (s *Service) Publish(jobID uuid.UUID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers[jobID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishJobUpdate publishes a "job_update" event
func (s *Service) PublishJobUpdate(update JobUpdate) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}
	s.Publish(update.JobID, Event{Type: "job_update", Data: update})
}

// GetClientCount returns the number of clients subscribed to a job
func (s *Service) GetClientCount(jobID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[jobID])
}
