package sse

import (
	"testing"

	"github.com/google/uuid"
)

func TestService_PublishReachesOnlyJobSubscribers(t *testing.T) {
	s := NewService()
	jobA, jobB := uuid.New(), uuid.New()

	chA, cancelA := s.Subscribe(jobA)
	defer cancelA()
	chB, cancelB := s.Subscribe(jobB)
	defer cancelB()

	s.PublishJobUpdate(JobUpdate{JobID: jobA, Status: "completed"})

	select {
	case ev := <-chA:
		update, ok := ev.Data.(JobUpdate)
		if ev.Type != "job_update" || !ok || update.Status != "completed" || update.Timestamp.IsZero() {
			t.Errorf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("expected an event for job A")
	}

	select {
	case ev := <-chB:
		t.Errorf("job B subscriber received %+v", ev)
	default:
	}
}

func TestService_CancelUnsubscribes(t *testing.T) {
	s := NewService()
	jobID := uuid.New()

	_, cancel1 := s.Subscribe(jobID)
	_, cancel2 := s.Subscribe(jobID)
	if got := s.GetClientCount(jobID); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	cancel1()
	cancel1()
	if got := s.GetClientCount(jobID); got != 1 {
		t.Errorf("expected 1 client after cancel, got %d", got)
	}
	cancel2()
	if got := s.GetClientCount(jobID); got != 0 {
		t.Errorf("expected no clients, got %d", got)
	}
}

func TestService_PublishNeverBlocks(t *testing.T) {
	s := NewService()
	jobID := uuid.New()
	ch, cancel := s.Subscribe(jobID)
	defer cancel()

	for i := 0; i < subscriberBuffer*2; i++ {
		s.Publish(jobID, Event{Type: "ping"})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("expected buffer to be full at %d, got %d", subscriberBuffer, len(ch))
	}
}
