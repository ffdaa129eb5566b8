package session

import (
	"errors"
	"sync"
	"testing"
)

func TestNewSessionStartsAtRoot(t *testing.T) {
	s := New("127.0.0.1:1234")

	if s.ID == "" {
		t.Fatal("expected a session id")
	}
	loc := s.Snapshot()
	if loc.Cwd != "" || loc.Previous != "" {
		t.Errorf("new session location = %+v, want root", loc)
	}
}

func TestNavigateApplies(t *testing.T) {
	s := New("addr")

	loc, err := s.Navigate(func(cur Location) (*Location, error) {
		return &Location{Cwd: "docs", Previous: cur.Cwd}, nil
	})
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if loc.Cwd != "docs" || loc.Previous != "" {
		t.Errorf("Navigate returned %+v", loc)
	}
	if got := s.Snapshot(); got != loc {
		t.Errorf("Snapshot = %+v, want %+v", got, loc)
	}
}

func TestNavigateErrorLeavesLocation(t *testing.T) {
	s := New("addr")
	want := errors.New("nope")

	_, err := s.Navigate(func(cur Location) (*Location, error) {
		return &Location{Cwd: "x"}, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if s.Snapshot().Cwd != "" {
		t.Error("failed navigation must not change cwd")
	}
}

func TestNavigateNilIsNoop(t *testing.T) {
	s := New("addr")
	_, _ = s.Navigate(func(Location) (*Location, error) { return &Location{Cwd: "a", Previous: ""}, nil })

	loc, err := s.Navigate(func(Location) (*Location, error) { return nil, nil })
	if err != nil || loc.Cwd != "a" {
		t.Errorf("no-op navigation = %+v, %v", loc, err)
	}
}

func TestNavigateReleasesLockOnPanic(t *testing.T) {
	s := New("addr")

	func() {
		defer func() { _ = recover() }()
		_, _ = s.Navigate(func(Location) (*Location, error) { panic("boom") })
	}()

	done := make(chan struct{})
	go func() {
		_, _ = s.Navigate(func(Location) (*Location, error) { return nil, nil })
		close(done)
	}()
	<-done
}

// Concurrent toggles between two directories must never expose a torn
// location: cwd and previous always differ and come from the same pair.
func TestConcurrentNavigationAndSnapshots(t *testing.T) {
	s := New("addr")
	_, _ = s.Navigate(func(Location) (*Location, error) { return &Location{Cwd: "a", Previous: "b"}, nil })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_, _ = s.Navigate(func(cur Location) (*Location, error) {
					return &Location{Cwd: cur.Previous, Previous: cur.Cwd}, nil
				})
			}
		}()
	}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				loc := s.Snapshot()
				if loc.Cwd == loc.Previous {
					t.Errorf("torn snapshot %+v", loc)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestCommandAccounting(t *testing.T) {
	s := New("addr")
	before := s.LastActivity()

	s.CommandStarted()
	s.CommandStarted()
	s.CommandFinished()

	if s.Commands() != 2 {
		t.Errorf("Commands = %d, want 2", s.Commands())
	}
	if s.InFlight() != 1 {
		t.Errorf("InFlight = %d, want 1", s.InFlight())
	}
	if s.LastActivity().Before(before) {
		t.Error("LastActivity went backwards")
	}
}
