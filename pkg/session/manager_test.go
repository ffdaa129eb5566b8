package session

import (
	"sync"
	"testing"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()

	a := m.Create("10.0.0.1:1")
	b := m.Create("10.0.0.2:2")
	if a.ID == b.ID {
		t.Fatal("session ids must be unique")
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d, want 2", m.Count())
	}

	got, ok := m.Get(a.ID)
	if !ok || got != a {
		t.Errorf("Get(%s) = %v, %v", a.ID, got, ok)
	}

	m.Delete(a.ID)
	m.Delete(a.ID)
	if _, ok := m.Get(a.ID); ok {
		t.Error("deleted session still present")
	}
	if m.Count() != 1 {
		t.Errorf("Count after delete = %d, want 1", m.Count())
	}
}

func TestManagerList(t *testing.T) {
	m := NewManager()
	first := m.Create("a")
	second := m.Create("b")

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d entries", len(list))
	}
	seen := map[string]bool{}
	for _, info := range list {
		seen[info.ID] = true
	}
	if !seen[first.ID] || !seen[second.ID] {
		t.Errorf("List = %+v, missing a session", list)
	}
	if list[0].CreatedAt.After(list[1].CreatedAt) {
		t.Error("List must be ordered oldest first")
	}
}

func TestManagerConcurrentCreateDelete(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Create("x")
			m.Delete(s.ID)
		}()
	}
	wg.Wait()

	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
}
