package concurrency

import (
	"testing"
	"time"
)

func TestSchedulerFiresInDeadlineOrder(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	got := make(chan int, 3)
	s.Schedule(30*time.Millisecond, func() { got <- 3 })
	s.Schedule(10*time.Millisecond, func() { got <- 1 })
	s.Schedule(20*time.Millisecond, func() { got <- 2 })

	for want := 1; want <= 3; want++ {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("fired %d, want %d", v, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for callback %d", want)
		}
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	fired := make(chan struct{}, 1)
	cancel := s.Schedule(20*time.Millisecond, func() { fired <- struct{}{} })
	if !cancel() {
		t.Fatal("cancel of pending callback returned false")
	}
	if cancel() {
		t.Fatal("second cancel returned true")
	}
	select {
	case <-fired:
		t.Fatal("canceled callback fired")
	case <-time.After(60 * time.Millisecond):
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestSchedulerClosedIgnoresSchedule(t *testing.T) {
	s := NewScheduler()
	s.Close()
	cancel := s.Schedule(time.Millisecond, func() { t.Error("callback ran after Close") })
	if cancel() {
		t.Error("cancel after Close returned true")
	}
	time.Sleep(10 * time.Millisecond)
}
